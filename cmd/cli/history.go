package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/anstrom/nmapdeck/internal/config"
	"github.com/anstrom/nmapdeck/internal/history"
	"github.com/anstrom/nmapdeck/internal/logging"
	"github.com/anstrom/nmapdeck/internal/metrics"
)

var historyJSON bool

// historyCmd represents the history command and its subcommands.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect scan history",
	Long: `Inspect the scan history kept in the configured SQL store.

The in-memory store only lives inside a running server; use the
/api/history endpoints for it.`,
	Example: `  nmapdeck history list
  nmapdeck history show 3f1c...
  nmapdeck history clear`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded scans, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withHistory(cmd.Context(), func(ctx context.Context, store history.Store) error {
			entries, err := store.List(ctx)
			if err != nil {
				return err
			}
			if historyJSON {
				return displayJSON(cmd.OutOrStdout(), entries)
			}
			displayHistoryTable(cmd.OutOrStdout(), entries)
			return nil
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one recorded scan and its report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHistory(cmd.Context(), func(ctx context.Context, store history.Store) error {
			entry, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if historyJSON {
				return displayJSON(cmd.OutOrStdout(), entry)
			}
			return showEntry(cmd.OutOrStdout(), entry)
		})
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every recorded scan",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withHistory(cmd.Context(), func(ctx context.Context, store history.Store) error {
			if err := store.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyClearCmd)
	historyCmd.PersistentFlags().BoolVar(&historyJSON, "json", false, "print JSON")
}

// withHistory opens the configured store for the duration of fn.
func withHistory(ctx context.Context, fn func(context.Context, history.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.UsesSQLHistory() {
		fmt.Fprintf(os.Stderr, "History driver is %q; nothing is kept between runs. "+
			"Set history.driver to sqlite3 or postgres.\n", cfg.History.Driver)
	}
	return runWithStore(ctx, cfg, fn)
}

func runWithStore(ctx context.Context, cfg *config.Config, fn func(context.Context, history.Store) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := history.Open(ctx, cfg.History, logging.Default(), metrics.Nop{})
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer func() { _ = store.Close() }()

	return fn(ctx, store)
}

func showEntry(out io.Writer, entry history.Entry) error {
	fmt.Fprintf(out, "ID:       %s\n", entry.ID)
	fmt.Fprintf(out, "Time:     %s\n", entry.Timestamp.Local().Format(time.DateTime))
	fmt.Fprintf(out, "Targets:  %s\n", entry.Targets)
	fmt.Fprintf(out, "Mode:     %s\n", entry.Mode)
	fmt.Fprintf(out, "File:     %s\n\n", entry.File)

	if entry.File == "" {
		displaySummary(out, entry.Summary)
		return nil
	}
	return runParse(out, entry.File)
}
