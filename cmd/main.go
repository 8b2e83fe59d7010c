package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sage-spkg",
	Short: "Source package tooling for the Sage distribution",
	Long: `sage-spkg installs and checks third-party source packages inside a Sage
installation. Each package directory carries a spkg.star recipe that declares
how its upstream sources are built, installed and tested.`,
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
