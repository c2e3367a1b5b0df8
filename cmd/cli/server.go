package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anstrom/nmapdeck/internal/api"
	"github.com/anstrom/nmapdeck/internal/config"
	"github.com/anstrom/nmapdeck/internal/history"
	"github.com/anstrom/nmapdeck/internal/logging"
	"github.com/anstrom/nmapdeck/internal/metrics"
)

// shutdownGrace is added on top of the configured shutdown timeout before
// giving up on the server.
const shutdownGrace = 5 * time.Second

// dirPermissions is used for the output directory.
const dirPermissions = 0750

// Server command flags.
var (
	serverHost string
	serverPort int
)

// serverFlagKeys binds server flags to configuration keys.
var serverFlagKeys = map[string]string{
	"host": "api.listen_addr",
	"port": "api.port",
}

// serverCmd represents the server command.
var serverCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   "Start the API server",
	Long: `Start the nmapdeck HTTP API in the foreground.

The server runs scans on request, serves parsed reports, scan history and
exports, streams scan events over WebSocket and exposes Prometheus metrics.
It stops gracefully on SIGINT or SIGTERM.`,
	Example: `  nmapdeck server
  nmapdeck server --host 0.0.0.0 --port 8080
  PORT=8080 nmapdeck server`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServer(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	def := config.Default()
	serverCmd.Flags().StringVar(&serverHost, "host", def.API.ListenAddr, "listen address")
	serverCmd.Flags().IntVarP(&serverPort, "port", "p", def.API.Port, "listen port")

	if err := bindFlags(viper.GetViper(), serverCmd.Flags(), serverFlagKeys); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

func runServer(out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := ensureOutputDir(cfg); err != nil {
		return err
	}

	logger := logging.Default()
	pm := metrics.GetGlobalMetrics()

	openCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	store, err := history.Open(openCtx, cfg.History, logger, pm)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.ErrorHistory("Failed to close history store", err)
		}
	}()

	scanner := newScanner(cfg, logger.WithComponent("scanner"), pm)
	defer func() { _ = scanner.Close() }()

	apiServer, err := api.New(cfg, scanner, store, pm)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	printStartupInfo(out, cfg)
	return waitForShutdown(out, apiServer, logger, cfg.API.ShutdownTimeout+shutdownGrace)
}

// waitForShutdown serves until SIGINT or SIGTERM and then waits for the
// graceful stop to finish.
func waitForShutdown(out io.Writer, apiServer *api.Server, logger *logging.Logger, timeout time.Duration) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	serverCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- apiServer.Start(serverCtx)
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
		fmt.Fprintf(out, "\nReceived %s signal, shutting down gracefully...\n", sig.String())

	case err := <-serverErrChan:
		if err != nil {
			logger.Error("API server error", "error", err)
			return fmt.Errorf("API server error: %w", err)
		}
		return nil
	}

	cancel()

	select {
	case err := <-serverErrChan:
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "Server stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("server did not stop within %s", timeout)
	}
}

func printStartupInfo(out io.Writer, cfg *config.Config) {
	fmt.Fprintf(out, "nmapdeck %s\n", version)
	fmt.Fprintf(out, "API listening on http://%s\n", cfg.GetAPIAddress())
	fmt.Fprintf(out, "Output directory: %s\n", cfg.Scanning.OutputDir)
	fmt.Fprintf(out, "History: %s (limit %d)\n", cfg.History.Driver, cfg.History.Limit)

	if verbose {
		fmt.Fprintf(out, "nmap binary: %s\n", cfg.Scanning.NmapPath)
		fmt.Fprintf(out, "Max concurrent scans: %d\n", cfg.Scanning.MaxConcurrentScans)
		fmt.Fprintf(out, "CORS origins: %v\n", cfg.API.CORSOrigins)
		fmt.Fprintf(out, "Rate limiting: %t\n", cfg.API.RateLimit.Enabled)
		printAPIEndpoints(out)
	}
}

// printAPIEndpoints prints available API endpoints.
func printAPIEndpoints(out io.Writer) {
	fmt.Fprintln(out, "Available endpoints:")
	fmt.Fprintln(out, "  GET  /api/health          - Health check")
	fmt.Fprintln(out, "  POST /api/scan/run        - Run a scan")
	fmt.Fprintln(out, "  POST /api/scan/parse      - Parse an XML report")
	fmt.Fprintln(out, "  GET  /api/history         - List scan history")
	fmt.Fprintln(out, "  POST /api/history/add     - Record a scan")
	fmt.Fprintln(out, "  GET  /api/history/get/:id - Scan history entry with report")
	fmt.Fprintln(out, "  POST /api/history/clear   - Clear scan history")
	fmt.Fprintln(out, "  POST /api/export/csv      - Export ports as CSV")
	fmt.Fprintln(out, "  POST /api/export/xml      - Save an XML report")
	fmt.Fprintln(out, "  GET  /api/export/list     - List saved files")
	fmt.Fprintln(out, "  GET  /api/ws              - WebSocket: scan events")
	fmt.Fprintln(out, "  GET  /metrics             - Prometheus metrics")
}
