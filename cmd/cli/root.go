// Package cli provides the command-line interface of nmapdeck.
// It implements the Cobra-based command tree for running scans, reading
// saved reports, serving the API and inspecting history and exports.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/anstrom/nmapdeck/internal/config"
	"github.com/anstrom/nmapdeck/internal/logging"
)

// envPrefix namespaces environment overrides, e.g. NMAPDECK_API_PORT.
const envPrefix = "NMAPDECK"

var (
	cfgFile string
	verbose bool
)

// Build information - these will be set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// legacyEnv maps the unprefixed variables earlier deployments used onto
// configuration keys. The prefixed form takes precedence.
var legacyEnv = map[string]string{
	"scanning.nmap_path":  "NMAP_PATH",
	"scanning.output_dir": "OUTPUT_DIR",
	"history.limit":       "SCAN_HISTORY_LIMIT",
	"api.port":            "PORT",
	"api.listen_addr":     "HOST",
	"api.cors_origins":    "CORS_ORIGIN",
}

// rootFlagKeys binds global flags to configuration keys.
var rootFlagKeys = map[string]string{
	"nmap-path":  "scanning.nmap_path",
	"output-dir": "scanning.output_dir",
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "nmapdeck",
	Short: "nmap scan orchestration",
	Long: `nmapdeck runs nmap with a fixed set of scan modes, normalizes the XML
reports into host and port records, keeps a bounded scan history and serves
all of it over an HTTP API for the web front end.`,
	Version:       getVersion(),
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.PersistentFlags().String("nmap-path", "", "nmap executable (default from config)")
	rootCmd.PersistentFlags().String("output-dir", "", "directory for reports and exports (default from config)")

	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind verbose flag: %v\n", err)
	}
	if err := bindFlags(viper.GetViper(), rootCmd.PersistentFlags(), rootFlagKeys); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

// bindFlags makes each named flag override its configuration key when set.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		flag := flags.Lookup(name)
		if flag == nil {
			return fmt.Errorf("unknown flag %q", name)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind %s flag: %w", name, err)
		}
	}
	return nil
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	configureViper(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}

	initLogging()
}

// configureViper sets up environment lookups and defaults on v.
func configureViper(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)
	setConfigDefaults(v)
}

// bindLegacyEnv lets the unprefixed variables still override settings.
func bindLegacyEnv(v *viper.Viper) {
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind %s: %v\n", legacy, err)
		}
	}
}

// setConfigDefaults registers every setting so that environment variables
// are seen by Unmarshal.
func setConfigDefaults(v *viper.Viper) {
	def := config.Default()

	// Scanning configuration
	v.SetDefault("scanning.nmap_path", def.Scanning.NmapPath)
	v.SetDefault("scanning.output_dir", def.Scanning.OutputDir)
	v.SetDefault("scanning.max_concurrent_scans", def.Scanning.MaxConcurrentScans)
	v.SetDefault("scanning.scan_timeout", def.Scanning.ScanTimeout)

	// API configuration
	v.SetDefault("api.listen_addr", def.API.ListenAddr)
	v.SetDefault("api.port", def.API.Port)
	v.SetDefault("api.cors_origins", def.API.CORSOrigins)
	v.SetDefault("api.read_timeout", def.API.ReadTimeout)
	v.SetDefault("api.write_timeout", def.API.WriteTimeout)
	v.SetDefault("api.shutdown_timeout", def.API.ShutdownTimeout)
	v.SetDefault("api.max_request_size", def.API.MaxRequestSize)
	v.SetDefault("api.rate_limit.enabled", def.API.RateLimit.Enabled)
	v.SetDefault("api.rate_limit.requests_per_second", def.API.RateLimit.RequestsPerSecond)
	v.SetDefault("api.rate_limit.burst_size", def.API.RateLimit.BurstSize)

	// History configuration
	v.SetDefault("history.limit", def.History.Limit)
	v.SetDefault("history.driver", def.History.Driver)
	v.SetDefault("history.dsn", def.History.DSN)

	// Logging configuration
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("logging.output", def.Logging.Output)
	v.SetDefault("logging.request_logging", def.Logging.RequestLogging)
}

// loadConfig resolves the effective configuration from defaults, the config
// file, environment variables and bound flags, in rising precedence.
func loadConfig() (*config.Config, error) {
	return decodeConfig(viper.GetViper())
}

// decodeConfig relies on setConfigDefaults having registered every key.
func decodeConfig(v *viper.Viper) (*config.Config, error) {
	cfg := &config.Config{}
	err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = getVersion()
}

// initLogging initializes structured logging based on configuration.
func initLogging() {
	cfg, err := loadConfig()
	if err != nil {
		logging.SetDefault(logging.NewDefault())
		return
	}

	logConfig := logging.Config{
		Level:     logging.LogLevel(cfg.Logging.Level),
		Format:    logging.LogFormat(cfg.Logging.Format),
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.Level == "debug",
	}

	logger, err := logging.New(logConfig)
	if err != nil {
		logger = logging.NewDefault()
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}

	logging.SetDefault(logger)

	if verbose {
		logging.Info("Structured logging initialized", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	}
}
