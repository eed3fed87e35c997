package config

import (
	"fmt"
	"os"

	"offerdex/pkg/model"
)

// LoggingConfig controls the handler stack built by internal/logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json, console
	Dir    string `yaml:"dir"`

	Rotation RotationConfig `yaml:"rotation"`
	Console  ConsoleConfig  `yaml:"console"`
	File     FileConfig     `yaml:"file"`
	Dedup    DedupConfig    `yaml:"dedup"`
}

// RotationConfig is passed through to lumberjack.
type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"` // megabytes
	MaxBackups int  `yaml:"max_backups"`
	MaxAge     int  `yaml:"max_age"` // days
	Compress   bool `yaml:"compress"`
}

type ConsoleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`  // empty inherits LoggingConfig.Level
	Format  string `yaml:"format"` // empty inherits LoggingConfig.Format
}

type FileConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	// Async batches file writes through a background goroutine.
	Async bool `yaml:"async"`
}

// DedupConfig collapses repeated identical records before they hit the
// handlers.
type DedupConfig struct {
	Enabled      bool           `yaml:"enabled"`
	BatchSize    int            `yaml:"batch_size"`
	FlushTimeout model.Duration `yaml:"flush_timeout"`
}

func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "text",
		Dir:    "logs",
		Rotation: RotationConfig{
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		},
		Console: ConsoleConfig{Enabled: true, Format: "console"},
		File:    FileConfig{Enabled: true},
	}
}

// ApplyDefaults refills fields an explicit YAML zero may have cleared
// and resolves the per-output level/format inheritance.
func (c *LoggingConfig) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
	if c.Dir == "" {
		c.Dir = "logs"
	}
	if c.Rotation.MaxSize <= 0 {
		c.Rotation.MaxSize = 100
	}
	if c.Rotation.MaxBackups <= 0 {
		c.Rotation.MaxBackups = 10
	}
	if c.Rotation.MaxAge <= 0 {
		c.Rotation.MaxAge = 30
	}
	if c.Console.Level == "" {
		c.Console.Level = c.Level
	}
	if c.Console.Format == "" {
		c.Console.Format = c.Format
	}
	if c.File.Level == "" {
		c.File.Level = c.Level
	}
	if c.File.Format == "" {
		c.File.Format = c.Format
	}
}

// ApplyEnvOverrides reads the OFFERDEX_LOG_* variables.
func (c *LoggingConfig) ApplyEnvOverrides() {
	if v := os.Getenv("OFFERDEX_LOG_LEVEL"); v != "" {
		c.Level = v
		c.Console.Level = v
		c.File.Level = v
	}
	if v := os.Getenv("OFFERDEX_LOG_FORMAT"); v != "" {
		c.Format = v
		c.File.Format = v
	}
	if v := os.Getenv("OFFERDEX_LOG_DIR"); v != "" {
		c.Dir = v
	}
}

func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Level)
	}
	for _, format := range []string{c.Format, c.Console.Format, c.File.Format} {
		switch format {
		case "", "text", "json", "console":
		default:
			return fmt.Errorf("invalid log format %q", format)
		}
	}
	if c.File.Enabled && c.Dir == "" {
		return fmt.Errorf("log dir required when file output is enabled")
	}
	return nil
}
