package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anstrom/nmapdeck/internal/config"
	"github.com/anstrom/nmapdeck/internal/history"
	"github.com/anstrom/nmapdeck/internal/logging"
	"github.com/anstrom/nmapdeck/internal/metrics"
	"github.com/anstrom/nmapdeck/internal/results"
	"github.com/anstrom/nmapdeck/internal/scanning"
)

// Scan command flags.
var (
	scanTargets  string
	scanMode     string
	scanJSON     bool
	scanNoRecord bool
)

// scanCmd represents the scan command.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run an nmap scan",
	Long: `Run nmap against the given targets with one of the predefined scan modes.
The raw XML report is saved to the output directory and the normalized hosts
are printed. With a SQL history store configured the scan is also recorded.`,
	Example: `  nmapdeck scan --targets 192.168.1.1
  nmapdeck scan --targets "10.0.0.1, scanme.nmap.org" --mode service-detect
  nmapdeck scan -t 10.0.0.1 -m quick --json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runScan(ctx, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVarP(&scanTargets, "targets", "t", "",
		"targets separated by spaces or commas (IPv4, IPv6 addresses or hostnames)")
	scanCmd.Flags().StringVarP(&scanMode, "mode", "m", string(scanning.ModeQuick),
		"scan mode: "+modeList())
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print the parsed result as JSON")
	scanCmd.Flags().BoolVar(&scanNoRecord, "no-history", false, "do not record the scan in history")

	if err := scanCmd.MarkFlagRequired("targets"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to mark targets flag required: %v\n", err)
	}
}

func runScan(ctx context.Context, out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := ensureOutputDir(cfg); err != nil {
		return err
	}

	logger := logging.Default().WithComponent("scan")
	scanner := newScanner(cfg, logger, metrics.Nop{})
	defer func() { _ = scanner.Close() }()

	mode := scanning.ParseMode(scanMode)
	if verbose {
		fmt.Fprintf(os.Stderr, "Scanning %s (mode %s)\n", scanTargets, mode)
	}

	outcome, err := scanner.RunScan(ctx, scanTargets, mode)
	if err != nil {
		return err
	}
	if !outcome.Succeeded() {
		if outcome.Soft() && len(outcome.Output) > 0 {
			fmt.Fprintln(os.Stderr, string(outcome.Output))
		}
		return outcome.Err()
	}

	result, err := results.ParseOutput(outcome.Output)
	if err != nil {
		return err
	}

	if !scanNoRecord && cfg.UsesSQLHistory() {
		recordScan(ctx, cfg, history.Entry{
			Targets: scanTargets,
			Mode:    mode.String(),
			File:    outcome.SavedPath,
			Summary: result.Summary,
		})
	}

	if scanJSON {
		return displayJSON(out, result)
	}

	displayHostsTable(out, result)
	if outcome.SavedPath != "" {
		fmt.Fprintf(out, "Report saved to %s\n", outcome.SavedPath)
	}
	return nil
}

// recordScan adds entry to the configured history store. Failures are
// logged; the scan itself already succeeded.
func recordScan(ctx context.Context, cfg *config.Config, entry history.Entry) {
	logger := logging.Default()
	store, err := history.Open(ctx, cfg.History, logger, metrics.Nop{})
	if err != nil {
		logger.ErrorHistory("Failed to open history store", err, "driver", cfg.History.Driver)
		return
	}
	defer func() { _ = store.Close() }()

	if _, err := store.Add(ctx, entry); err != nil {
		logger.ErrorHistory("Failed to record scan", err, "targets", entry.Targets)
	}
}

func newScanner(cfg *config.Config, logger *logging.Logger, rec metrics.Recorder) *scanning.Scanner {
	return scanning.NewScanner(scanning.Options{
		Binary:        cfg.Scanning.NmapPath,
		OutputDir:     cfg.Scanning.OutputDir,
		MaxConcurrent: cfg.Scanning.MaxConcurrentScans,
		Timeout:       cfg.Scanning.ScanTimeout,
		Logger:        logger,
		Metrics:       rec,
	})
}

func ensureOutputDir(cfg *config.Config) error {
	if err := os.MkdirAll(cfg.Scanning.OutputDir, dirPermissions); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", cfg.Scanning.OutputDir, err)
	}
	return nil
}

func modeList() string {
	modes := scanning.Modes()
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = m.String()
	}
	return strings.Join(names, ", ")
}
