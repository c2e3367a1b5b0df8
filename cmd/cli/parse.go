package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/anstrom/nmapdeck/internal/export"
	"github.com/anstrom/nmapdeck/internal/results"
)

var parseJSON bool

// parseCmd represents the parse command.
var parseCmd = &cobra.Command{
	Use:   "parse <report.xml>",
	Short: "Normalize a saved nmap XML report",
	Long: `Read an nmap XML report from disk and print its hosts and ports the same
way the API returns them. Reports written by other nmap invocations work too.`,
	Example: `  nmapdeck parse output/nmap_scan_2024-05-01T10-11-12-345Z_1a2b3c4d.xml
  nmapdeck parse scan.xml --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runParse(cmd.OutOrStdout(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)
	parseCmd.Flags().BoolVar(&parseJSON, "json", false, "print the parsed result as JSON")
}

// parsedReport is the JSON shape of the parse command.
type parsedReport struct {
	Run *results.RunInfo `json:"run,omitempty"`
	*results.Result
}

func runParse(out io.Writer, path string) error {
	raw, err := export.ReadReport(path)
	if err != nil {
		return err
	}

	result, err := results.ParseOutput(raw)
	if err != nil {
		return err
	}

	// Run metadata is optional; the host listing stands on its own.
	info, _ := results.ReadRunInfo(raw)

	if parseJSON {
		return displayJSON(out, parsedReport{Run: info, Result: result})
	}

	if info != nil {
		displayRunInfo(out, info)
	}
	displayHostsTable(out, result)
	return nil
}
