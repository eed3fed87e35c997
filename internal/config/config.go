// Package config assembles the service configuration. Precedence, lowest
// to highest: package defaults, config.yml, config.local.yml, then
// OFFERDEX_* environment variables. A .env file in the working directory
// is loaded first so containerized deployments can ship overrides as a
// single file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"offerdex/internal/catalog"
	"offerdex/internal/ledger"
	"offerdex/internal/registry"
	"offerdex/internal/server"
)

// Config is the root of the YAML configuration.
type Config struct {
	Server   server.Config   `yaml:"server"`
	Registry registry.Config `yaml:"registry"`
	Catalog  catalog.Config  `yaml:"catalog"`
	Ledger   ledger.Config   `yaml:"ledger"`
	Logging  LoggingConfig   `yaml:"logging"`
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() *Config {
	return &Config{
		Server:   server.DefaultConfig(),
		Registry: registry.DefaultConfig(),
		Catalog:  catalog.DefaultConfig(),
		Ledger:   ledger.DefaultConfig(),
		Logging:  DefaultLoggingConfig(),
	}
}

// Load reads the configuration from dir, applying the documented
// precedence, and validates the result.
func Load(dir string) (*Config, error) {
	// Missing .env is the common case, not an error.
	_ = godotenv.Load()

	cfg := Default()
	if err := loadFile(filepath.Join(dir, "config.yml"), cfg); err != nil {
		return nil, err
	}
	if err := loadFile(filepath.Join(dir, "config.local.yml"), cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults refills zero values a config file may have cleared.
func (c *Config) ApplyDefaults() {
	c.Server.ApplyDefaults()
	c.Ledger.ApplyDefaults()
	c.Logging.ApplyDefaults()
}

// ApplyEnvOverrides applies OFFERDEX_* environment variables on top of
// the file-derived configuration.
func (c *Config) ApplyEnvOverrides() {
	c.Server.ApplyEnvOverrides()
	c.Ledger.ApplyEnvOverrides()
	c.Logging.ApplyEnvOverrides()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Registry.Validate(); err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	if err := c.Catalog.Validate(); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	if err := c.Ledger.Validate(); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
