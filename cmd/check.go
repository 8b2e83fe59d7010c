package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sagemath/sage-spkg/pkg"
	"github.com/sagemath/sage-spkg/pkg/recipe"
)

var checkCmd = &cobra.Command{
	Use:   "check [package-dir] [option=value ...]",
	Short: "Runs a package's test suites",
	Long: `Runs the recipe's check task against the installed package. The task's
commands run with fail-fast semantics: the first failing test suite aborts the
run and no further suites execute.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := pkg.LoadEnv()
		if err != nil {
			return err
		}

		plain, options := splitTaskArgs(args)
		pkgRoot, err := resolvePackageRoot(plain)
		if err != nil {
			return err
		}

		ctx, _ := loggerContext()
		rcp, err := loadRecipe(ctx, pkgRoot, env, options)
		if err != nil {
			return err
		}

		if _, err := rcp.Task("check"); err != nil {
			return err
		}

		pkg.PrintTask(fmt.Sprintf("Checking %s %s", rcp.Package.Name, rcp.Package.Version))
		err = recipe.RunTask(ctx, pkgRoot, "check", rcp.Tasks, false, true)
		if err != nil {
			return err
		}

		pkg.PrintTask("All checks passed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
