package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/anstrom/nmapdeck/internal/export"
)

var exportsJSON bool

// exportsCmd represents the exports command.
var exportsCmd = &cobra.Command{
	Use:   "exports",
	Short: "List saved scans and exports",
	Long: `List the saved nmap reports and exported files in the output directory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return listExports(cmd.OutOrStdout(), export.NewExporter(cfg.Scanning.OutputDir))
	},
}

func init() {
	rootCmd.AddCommand(exportsCmd)
	exportsCmd.Flags().BoolVar(&exportsJSON, "json", false, "print JSON")
}

func listExports(out io.Writer, exporter *export.Exporter) error {
	files, err := exporter.List()
	if err != nil {
		return err
	}
	if exportsJSON {
		return displayJSON(out, files)
	}
	displayExportsTable(out, files)
	return nil
}
