// Package config provides configuration management for the Reelchain Agent.
// Configuration is loaded from environment variables with sensible defaults.
// A .env file in the working directory is honored for local development.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort     = 8878
	DefaultLogLevel = "info"
	DefaultDataDir  = ".reelchain"

	// Environment variable names
	EnvPort     = "REELCHAIN_PORT"
	EnvLogLevel = "REELCHAIN_LOG_LEVEL"
	EnvDataDir  = "REELCHAIN_DATA_DIR"

	// Provider environment variable names
	EnvProviderBaseURL = "REELCHAIN_PROVIDER_BASE_URL"
	EnvProviderToken   = "REELCHAIN_PROVIDER_TOKEN"

	// Poller environment variable names (seconds unless noted)
	EnvPollInitialDelay = "REELCHAIN_POLL_INITIAL_DELAY_S"
	EnvPollMaxDelay     = "REELCHAIN_POLL_MAX_DELAY_S"
	EnvPollDeadline     = "REELCHAIN_POLL_DEADLINE_S"

	// Simulation environment variable names
	EnvSimDelay = "REELCHAIN_SIM_DELAY_S"

	// Database filename
	DBFilename = "reelchain.db"

	// Poller defaults
	DefaultPollInitialDelay = 3   // seconds
	DefaultPollMaxDelay     = 10  // seconds
	DefaultPollDeadline     = 300 // 5 minutes
	PollBackoffMultiplier   = 1.3

	// Simulation defaults
	DefaultSimDelay = 8 // seconds of simulated generation time
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	ClipsDir() string
	ProviderBaseURL() string
	ProviderToken() string
	ProviderEnabled() bool
	PollInitialDelay() time.Duration
	PollMaxDelay() time.Duration
	PollDeadline() time.Duration
	SimDelay() time.Duration
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string

	providerBaseURL string
	providerToken   string

	pollInitialDelay time.Duration
	pollMaxDelay     time.Duration
	pollDeadline     time.Duration
	simDelay         time.Duration
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	// Best effort: a missing .env is not an error.
	_ = godotenv.Load()

	cfg := &EnvConfig{
		port:             DefaultPort,
		logLevel:         DefaultLogLevel,
		dataDir:          defaultDataDir(),
		pollInitialDelay: DefaultPollInitialDelay * time.Second,
		pollMaxDelay:     DefaultPollMaxDelay * time.Second,
		pollDeadline:     DefaultPollDeadline * time.Second,
		simDelay:         DefaultSimDelay * time.Second,
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	cfg.providerBaseURL = os.Getenv(EnvProviderBaseURL)
	cfg.providerToken = os.Getenv(EnvProviderToken)

	var err error
	if cfg.pollInitialDelay, err = secondsFromEnv(EnvPollInitialDelay, cfg.pollInitialDelay); err != nil {
		return nil, err
	}
	if cfg.pollMaxDelay, err = secondsFromEnv(EnvPollMaxDelay, cfg.pollMaxDelay); err != nil {
		return nil, err
	}
	if cfg.pollDeadline, err = secondsFromEnv(EnvPollDeadline, cfg.pollDeadline); err != nil {
		return nil, err
	}
	if cfg.simDelay, err = secondsFromEnv(EnvSimDelay, cfg.simDelay); err != nil {
		return nil, err
	}

	return cfg, nil
}

func secondsFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if secs < 1 {
		return 0, fmt.Errorf("invalid %s: must be at least 1 second", key)
	}
	return time.Duration(secs) * time.Second, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite journal database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// ClipsDir returns the directory downloaded clips and frames land in
func (c *EnvConfig) ClipsDir() string {
	return filepath.Join(c.dataDir, "clips")
}

func (c *EnvConfig) ProviderBaseURL() string {
	return c.providerBaseURL
}

func (c *EnvConfig) ProviderToken() string {
	return c.providerToken
}

// ProviderEnabled reports whether live provider credentials are configured.
// Without both a base URL and a token the agent runs against its own
// simulation backend.
func (c *EnvConfig) ProviderEnabled() bool {
	return c.providerBaseURL != "" && c.providerToken != ""
}

func (c *EnvConfig) PollInitialDelay() time.Duration {
	return c.pollInitialDelay
}

func (c *EnvConfig) PollMaxDelay() time.Duration {
	return c.pollMaxDelay
}

func (c *EnvConfig) PollDeadline() time.Duration {
	return c.pollDeadline
}

func (c *EnvConfig) SimDelay() time.Duration {
	return c.simDelay
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
