package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kode4food/cascade/pkg/events"
	"github.com/kode4food/cascade/pkg/flow"
	"github.com/kode4food/cascade/pkg/log"
	"github.com/kode4food/cascade/pkg/script"
)

type (
	// Config holds the settings shared by the CLI and the HTTP host
	Config struct {
		// API Server
		APIHost  string
		APIPort  int
		LogLevel string

		// Persistence
		StoreURL      string
		SinkBatchSize int

		// Engine
		MaxConcurrency  int
		MaxReentry      int
		StepTimeout     time.Duration
		ScriptCacheSize int
		ShutdownTimeout time.Duration
	}
)

const (
	DefaultAPIPort         = 8080
	DefaultAPIHost         = "0.0.0.0"
	DefaultLogLevel        = "info"
	DefaultMaxReentry      = 10
	DefaultStepTimeout     = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	MaxTCPPort        = 65535
	MaxConcurrency    = 10_000
	MaxReentry        = 1_000_000
	MaxSinkBatchSize  = 100_000
	MaxScriptCache    = 100_000
	MaxStepTimeout    = 365 * 24 * time.Hour
	MaxShutdownPeriod = time.Hour
)

var (
	ErrInvalidAPIPort         = errors.New("invalid API port")
	ErrInvalidLogLevel        = errors.New("invalid log level")
	ErrInvalidStepTimeout     = errors.New("step timeout cannot be negative")
	ErrInvalidMaxReentry      = errors.New("max reentry cannot be negative")
	ErrInvalidConcurrency     = errors.New("concurrency cannot be negative")
	ErrInvalidScriptCache     = errors.New("script cache size must be positive")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidEnv             = errors.New("invalid environment variable")
)

// NewDefaultConfig creates a configuration with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		APIHost:         DefaultAPIHost,
		APIPort:         DefaultAPIPort,
		LogLevel:        DefaultLogLevel,
		SinkBatchSize:   events.DefaultBatchSize,
		ScriptCacheSize: script.DefaultCacheSize,
		MaxReentry:      DefaultMaxReentry,
		StepTimeout:     DefaultStepTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed
func (c *Config) LoadFromEnv() error {
	if apiHost := os.Getenv("API_HOST"); apiHost != "" {
		c.APIHost = apiHost
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.LogLevel = logLevel
	}
	if storeURL := os.Getenv("STORE_URL"); storeURL != "" {
		c.StoreURL = storeURL
	}

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvInt(
		"MAX_CONCURRENCY", &c.MaxConcurrency, -1, MaxConcurrency,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"MAX_REENTRY", &c.MaxReentry, -1, MaxReentry,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"SINK_BATCH_SIZE", &c.SinkBatchSize, 0, MaxSinkBatchSize,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"SCRIPT_CACHE_SIZE", &c.ScriptCacheSize, 0, MaxScriptCache,
	); err != nil {
		return err
	}

	if err := loadEnvDuration(
		"STEP_TIMEOUT", &c.StepTimeout, MaxStepTimeout,
	); err != nil {
		return err
	}
	return loadEnvDuration(
		"SHUTDOWN_TIMEOUT", &c.ShutdownTimeout, MaxShutdownPeriod,
	)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}

	if !log.IsLevel(c.LogLevel) {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}

	if c.StepTimeout < 0 {
		return ErrInvalidStepTimeout
	}

	if c.MaxReentry < 0 {
		return ErrInvalidMaxReentry
	}

	if c.MaxConcurrency < 0 {
		return ErrInvalidConcurrency
	}

	if c.ScriptCacheSize <= 0 {
		return ErrInvalidScriptCache
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	return nil
}

// FlowOptions returns the engine defaults as flow options
func (c *Config) FlowOptions() []flow.Option {
	return []flow.Option{
		flow.WithMaxReentry(c.MaxReentry),
		flow.WithConcurrency(c.MaxConcurrency),
		flow.WithStepTimeout(c.StepTimeout),
	}
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max]
func loadEnvInt(key string, dst *int, min, max int) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidEnv, key, s)
	}
	if v <= min || v > max {
		return fmt.Errorf("%w: %s=%d out of range [%d, %d]",
			ErrInvalidEnv, key, v, min+1, max)
	}
	*dst = v
	return nil
}

func loadEnvDuration(key string, dst *time.Duration, max time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidEnv, key, s)
	}
	if v < 0 || v > max {
		return fmt.Errorf("%w: %s=%s out of range", ErrInvalidEnv, key, v)
	}
	*dst = v
	return nil
}
