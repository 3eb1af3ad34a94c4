package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/cascade/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.NewDefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, config.DefaultAPIPort, cfg.APIPort)
	assert.Equal(t, config.DefaultMaxReentry, cfg.MaxReentry)
	assert.Empty(t, cfg.StoreURL)
	assert.Len(t, cfg.FlowOptions(), 3)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		configMod func(*config.Config)
		expected  error
	}{
		{
			name:      "invalid_api_port_zero",
			configMod: func(c *config.Config) { c.APIPort = 0 },
			expected:  config.ErrInvalidAPIPort,
		},
		{
			name:      "invalid_api_port_too_high",
			configMod: func(c *config.Config) { c.APIPort = 70000 },
			expected:  config.ErrInvalidAPIPort,
		},
		{
			name:      "invalid_log_level",
			configMod: func(c *config.Config) { c.LogLevel = "loud" },
			expected:  config.ErrInvalidLogLevel,
		},
		{
			name:      "negative_step_timeout",
			configMod: func(c *config.Config) { c.StepTimeout = -time.Second },
			expected:  config.ErrInvalidStepTimeout,
		},
		{
			name:      "negative_reentry",
			configMod: func(c *config.Config) { c.MaxReentry = -1 },
			expected:  config.ErrInvalidMaxReentry,
		},
		{
			name:      "negative_concurrency",
			configMod: func(c *config.Config) { c.MaxConcurrency = -1 },
			expected:  config.ErrInvalidConcurrency,
		},
		{
			name:      "zero_script_cache",
			configMod: func(c *config.Config) { c.ScriptCacheSize = 0 },
			expected:  config.ErrInvalidScriptCache,
		},
		{
			name:      "zero_shutdown_timeout",
			configMod: func(c *config.Config) { c.ShutdownTimeout = 0 },
			expected:  config.ErrInvalidShutdownTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewDefaultConfig()
			tt.configMod(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.expected)
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("API_HOST", "127.0.0.1")
	t.Setenv("API_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STORE_URL", "memory://")
	t.Setenv("MAX_CONCURRENCY", "4")
	t.Setenv("MAX_REENTRY", "0")
	t.Setenv("SINK_BATCH_SIZE", "16")
	t.Setenv("SCRIPT_CACHE_SIZE", "32")
	t.Setenv("STEP_TIMEOUT", "5s")
	t.Setenv("SHUTDOWN_TIMEOUT", "1m")

	cfg := config.NewDefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1", cfg.APIHost)
	assert.Equal(t, 9090, cfg.APIPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "memory://", cfg.StoreURL)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Equal(t, 0, cfg.MaxReentry)
	assert.Equal(t, 16, cfg.SinkBatchSize)
	assert.Equal(t, 32, cfg.ScriptCacheSize)
	assert.Equal(t, 5*time.Second, cfg.StepTimeout)
	assert.Equal(t, time.Minute, cfg.ShutdownTimeout)
}

func TestLoadFromEnvErrors(t *testing.T) {
	for key, val := range map[string]string{
		"API_PORT":          "http",
		"MAX_CONCURRENCY":   "-2",
		"SINK_BATCH_SIZE":   "0",
		"SCRIPT_CACHE_SIZE": "-1",
		"STEP_TIMEOUT":      "soon",
		"SHUTDOWN_TIMEOUT":  "2h",
	} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			cfg := config.NewDefaultConfig()
			assert.ErrorIs(t, cfg.LoadFromEnv(), config.ErrInvalidEnv)
		})
	}
}
