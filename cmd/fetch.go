package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sagemath/sage-spkg/pkg"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [package-dir]",
	Short: "Downloads and unpacks a package's upstream sources",
	Long: `Downloads the sources listed in the package's checksums.yml, verifies their
checksums and unpacks them into the package directory. Sources that are
already present and unchanged are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		update, err := cmd.Flags().GetBool("update")
		if err != nil {
			return err
		}

		pkgRoot, err := resolvePackageRoot(args)
		if err != nil {
			return err
		}

		pkg.PrintTask(fmt.Sprintf("Fetching sources in %s", pkgRoot))
		err = fetchSources(pkgRoot, update)
		if err != nil {
			return err
		}

		pkg.PrintTask("Done")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().BoolP("update", "u", false, "update checksums instead of failing on a mismatch")
}
