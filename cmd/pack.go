package cmd

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sagemath/sage-spkg/pkg"
)

var packCmd = &cobra.Command{
	Use:   "pack archive_name content_directory",
	Short: "Packs the content of the passed directory into a .sar archive",
	Long: `Pass the name of the .sar file that should be generated and a directory with
the intended contents. The archive carries a pre-built package tree so it can
be unpacked on another machine with the unpack command.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return eris.New("Expected 2 arguments!")
		}

		return pkg.PackDirectory(args[0], args[1])
	},
}

var unpackCmd = &cobra.Command{
	Use:   "unpack archive_name dest_directory",
	Short: "Unpacks a .sar archive into the passed directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return eris.New("Expected 2 arguments!")
		}

		reader, err := pkg.OpenSarArchive(args[0])
		if err != nil {
			return err
		}
		defer reader.Close()

		return reader.Extract(args[1])
	},
}

func init() {
	rootCmd.AddCommand(packCmd)
	rootCmd.AddCommand(unpackCmd)
}
