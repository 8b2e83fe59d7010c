package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sagemath/sage-spkg/pkg"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks [package-dir]",
	Short: "Lists the tasks a package recipe declares",
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

		fmt.Printf("Tasks declared by %s %s:\n", rcp.Package.Name, rcp.Package.Version)
		maxNameLen := 0
		sortedNames := make([]string, 0, len(rcp.Tasks))
		for _, task := range rcp.Tasks {
			if len(task.Short) > maxNameLen {
				maxNameLen = len(task.Short)
			}

			sortedNames = append(sortedNames, task.Short)
		}

		sort.Strings(sortedNames)

		lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
		for _, name := range sortedNames {
			fmt.Printf(lineFmt, name+":", rcp.Tasks[name].Desc)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}
