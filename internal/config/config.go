package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/nmapdeck/internal/errors"
)

const (
	configDirPerm  = 0750
	configFilePerm = 0600
)

// Config represents the complete nmapdeck configuration
type Config struct {
	// Scanning configuration
	Scanning ScanningConfig `yaml:"scanning" json:"scanning"`

	// API configuration
	API APIConfig `yaml:"api" json:"api"`

	// History configuration
	History HistoryConfig `yaml:"history" json:"history"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ScanningConfig holds scanning-related settings
type ScanningConfig struct {
	// nmap executable, resolved through PATH when not absolute
	NmapPath string `yaml:"nmap_path" json:"nmap_path" validate:"required"`

	// Directory that receives raw scan output and exports
	OutputDir string `yaml:"output_dir" json:"output_dir" validate:"required"`

	// Maximum nmap processes running at once, 0 for unbounded
	MaxConcurrentScans int `yaml:"max_concurrent_scans" json:"max_concurrent_scans" validate:"gte=0"`

	// Per-scan timeout, 0 disables it
	ScanTimeout time.Duration `yaml:"scan_timeout" json:"scan_timeout" validate:"gte=0"`
}

// APIConfig holds API server settings
type APIConfig struct {
	// Listen address
	ListenAddr string `yaml:"listen_addr" json:"listen_addr" validate:"required"`

	// Listen port
	Port int `yaml:"port" json:"port" validate:"gte=1,lte=65535"`

	// Allowed CORS origins
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`

	// Timeouts for the HTTP server
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// Maximum request body size in bytes
	MaxRequestSize int64 `yaml:"max_request_size" json:"max_request_size" validate:"gt=0"`

	// Rate limiting for scan launches
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	// Enable rate limiting
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Requests per second
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second" validate:"gte=0"`

	// Burst size
	BurstSize int `yaml:"burst_size" json:"burst_size" validate:"gte=0"`
}

// HistoryConfig holds scan history settings
type HistoryConfig struct {
	// Maximum entries kept, newest first
	Limit int `yaml:"limit" json:"limit" validate:"gte=1"`

	// Backing store: memory, sqlite3 or postgres
	Driver string `yaml:"driver" json:"driver" validate:"oneof=memory sqlite3 postgres"`

	// Data source name for the SQL drivers
	DSN string `yaml:"dsn" json:"dsn" validate:"required_unless=Driver memory"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`

	// Log format (text, json)
	Format string `yaml:"format" json:"format" validate:"oneof=text json"`

	// Log output (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`

	// Enable request logging for API
	RequestLogging bool `yaml:"request_logging" json:"request_logging"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Scanning: ScanningConfig{
			NmapPath:           "nmap",
			OutputDir:          "output",
			MaxConcurrentScans: 4,
			ScanTimeout:        0,
		},
		API: APIConfig{
			ListenAddr:      "127.0.0.1",
			Port:            3000,
			CORSOrigins:     []string{"*"},
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    0, // scans can run for a long time
			ShutdownTimeout: 30 * time.Second,
			MaxRequestSize:  10 * 1024 * 1024,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 1,
				BurstSize:         5,
			},
		},
		History: HistoryConfig{
			Limit:  10,
			Driver: "memory",
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			Output:         "stderr",
			RequestLogging: true,
		},
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	config := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil // Return defaults if no config file
	}

	data, err := os.ReadFile(path) // #nosec G304 - path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// JSON is a subset of YAML, so one decoder serves both extensions.
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(path), err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), configDirPerm); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, configFilePerm); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return errors.ErrConfigInvalid(fe.Namespace(), fe.Value())
		}
		return err
	}

	if c.API.RateLimit.Enabled && c.API.RateLimit.RequestsPerSecond <= 0 {
		return errors.ErrConfigInvalid("Config.API.RateLimit.RequestsPerSecond", c.API.RateLimit.RequestsPerSecond)
	}

	return nil
}

// GetAPIAddress returns the full API address
func (c *Config) GetAPIAddress() string {
	return fmt.Sprintf("%s:%d", c.API.ListenAddr, c.API.Port)
}

// UsesSQLHistory reports whether history is kept in a database
func (c *Config) UsesSQLHistory() bool {
	return c.History.Driver != "memory"
}
