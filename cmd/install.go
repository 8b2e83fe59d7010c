package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sagemath/sage-spkg/pkg"
	"github.com/sagemath/sage-spkg/pkg/recipe"
)

var installCmd = &cobra.Command{
	Use:   "install [package-dir] [option=value ...]",
	Short: "Builds a package and installs it into the Sage prefix",
	Long: `Fetches the package's upstream sources, removes files left behind by prior
installs of the same package and runs the recipe's install task with
SAGE_LOCAL and SAGE_DESTDIR exported. The list of installed files is recorded
so the next install of this package can clean up after this one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := pkg.LoadEnv()
		if err != nil {
			return err
		}

		dryRun, err := cmd.Flags().GetBool("dry")
		if err != nil {
			return err
		}

		force, err := cmd.Flags().GetBool("force")
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

		if _, err := rcp.Task("install"); err != nil {
			return err
		}

		if !dryRun {
			pkg.PrintTask(fmt.Sprintf("Fetching sources for %s %s", rcp.Package.Name, rcp.Package.Version))
			err = fetchSources(pkgRoot, false)
			if err != nil {
				return err
			}

			pkg.PrintTask(fmt.Sprintf("Removing prior %s installs", rcp.Package.Name))
			found, err := pkg.RemovePrior(env.Local, rcp.Package.Name)
			if err != nil {
				return err
			}
			if found {
				pkg.PrintSubtask("removed files from the previous install record")
			}

			err = pkg.RemoveGlobs(env.Local, rcp.Package.Cleanup)
			if err != nil {
				return err
			}
		}

		destRoot := env.DestPrefix()
		before, err := pkg.Snapshot(destRoot)
		if err != nil {
			return err
		}

		pkg.PrintTask(fmt.Sprintf("Installing %s %s", rcp.Package.Name, rcp.Package.Version))
		err = recipe.RunTask(ctx, pkgRoot, "install", rcp.Tasks, dryRun, force)
		if err != nil {
			return err
		}

		if dryRun {
			pkg.PrintTask("Done (dry run)")
			return nil
		}

		after, err := pkg.Snapshot(destRoot)
		if err != nil {
			return err
		}

		err = pkg.WriteRecord(destRoot, &pkg.Record{
			Package:   rcp.Package.Name,
			Version:   rcp.Package.Version,
			Installed: time.Now().UTC(),
			Files:     pkg.NewFiles(before, after),
		})
		if err != nil {
			return err
		}

		pkg.PrintTask("Done")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
	installCmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	installCmd.Flags().BoolP("force", "f", false, "always run the install task even if its outputs are current")
}
