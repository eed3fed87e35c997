package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultLoggingConfig(t *testing.T) {
	cfg := DefaultLoggingConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "text", cfg.Format)
	assert.Equal(t, "logs", cfg.Dir)
	assert.Equal(t, 100, cfg.Rotation.MaxSize)
	assert.Equal(t, 10, cfg.Rotation.MaxBackups)
	assert.Equal(t, 30, cfg.Rotation.MaxAge)
	assert.True(t, cfg.Rotation.Compress)
	assert.True(t, cfg.Console.Enabled)
	assert.Equal(t, "console", cfg.Console.Format)
	assert.True(t, cfg.File.Enabled)
}

func TestLoggingConfigApplyDefaults(t *testing.T) {
	var cfg LoggingConfig
	cfg.ApplyDefaults()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "text", cfg.Format)
	assert.Equal(t, "logs", cfg.Dir)

	// Per-output settings inherit the top-level ones when unset.
	inherit := LoggingConfig{Level: "debug", Format: "json"}
	inherit.ApplyDefaults()
	assert.Equal(t, "debug", inherit.Console.Level)
	assert.Equal(t, "json", inherit.File.Format)

	explicit := LoggingConfig{Level: "info", Console: ConsoleConfig{Level: "warn"}}
	explicit.ApplyDefaults()
	assert.Equal(t, "warn", explicit.Console.Level)
}

func TestLoggingConfigApplyEnvOverrides(t *testing.T) {
	t.Setenv("OFFERDEX_LOG_LEVEL", "debug")
	t.Setenv("OFFERDEX_LOG_FORMAT", "json")
	t.Setenv("OFFERDEX_LOG_DIR", "/var/log/offerdex")

	cfg := DefaultLoggingConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "debug", cfg.Level)
	assert.Equal(t, "debug", cfg.Console.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "json", cfg.File.Format)
	assert.Equal(t, "/var/log/offerdex", cfg.Dir)
}

func TestLoggingConfigValidate(t *testing.T) {
	cfg := DefaultLoggingConfig()
	require.NoError(t, cfg.Validate())

	bad := DefaultLoggingConfig()
	bad.Level = "verbose"
	assert.Error(t, bad.Validate())

	bad = DefaultLoggingConfig()
	bad.Format = "xml"
	assert.Error(t, bad.Validate())

	bad = DefaultLoggingConfig()
	bad.Dir = ""
	bad.File.Enabled = true
	assert.Error(t, bad.Validate())
}

func TestLoggingConfigYAMLParsing(t *testing.T) {
	var cfg LoggingConfig
	require.NoError(t, yaml.Unmarshal([]byte(`
level: warn
format: json
dir: /tmp/logs
rotation:
  max_size: 5
  compress: false
dedup:
  enabled: true
  batch_size: 64
  flush_timeout: 2s
`), &cfg))

	assert.Equal(t, "warn", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "/tmp/logs", cfg.Dir)
	assert.Equal(t, 5, cfg.Rotation.MaxSize)
	assert.False(t, cfg.Rotation.Compress)
	assert.True(t, cfg.Dedup.Enabled)
	assert.Equal(t, 64, cfg.Dedup.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Dedup.FlushTimeout.Std())
}
