package server

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"offerdex/pkg/model"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host     string `yaml:"host"`
	HTTPPort int    `yaml:"http_port"`

	HTTPReadTimeout  model.Duration `yaml:"http_read_timeout"`
	HTTPWriteTimeout model.Duration `yaml:"http_write_timeout"`
	HTTPIdleTimeout  model.Duration `yaml:"http_idle_timeout"`
	ShutdownTimeout  model.Duration `yaml:"shutdown_timeout"`

	EnableCORS       bool     `yaml:"enable_cors"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	CORSMaxAge       int      `yaml:"cors_max_age"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Auth      AuthConfig      `yaml:"auth"`
}

// RateLimitConfig controls per-client request budgets. The write budget
// applies to catalog mutations and is stricter than the general one.
type RateLimitConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Requests int            `yaml:"requests"`
	Window   model.Duration `yaml:"window"`

	WriteRequests int            `yaml:"write_requests"`
	WriteWindow   model.Duration `yaml:"write_window"`
}

// AuthConfig controls bearer token authentication for mutating
// endpoints. When disabled, writes are open; read endpoints never
// require a token.
type AuthConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Secret   string         `yaml:"secret"`
	Issuer   string         `yaml:"issuer"`
	TokenTTL model.Duration `yaml:"token_ttl"`
}

// DefaultConfig returns safe defaults for development.
func DefaultConfig() Config {
	return Config{
		Host:             "localhost",
		HTTPPort:         8080,
		HTTPReadTimeout:  model.Duration(10 * time.Second),
		HTTPWriteTimeout: model.Duration(30 * time.Second),
		HTTPIdleTimeout:  model.Duration(60 * time.Second),
		ShutdownTimeout:  model.Duration(10 * time.Second),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		CORSMaxAge:       300,
		RateLimit: RateLimitConfig{
			Requests:      100,
			Window:        model.Duration(time.Minute),
			WriteRequests: 20,
			WriteWindow:   model.Duration(time.Minute),
		},
		Auth: AuthConfig{
			Issuer:   "offerdex",
			TokenTTL: model.Duration(24 * time.Hour),
		},
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.Host == "" {
		c.Host = defaults.Host
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = defaults.HTTPPort
	}
	if c.HTTPReadTimeout == 0 {
		c.HTTPReadTimeout = defaults.HTTPReadTimeout
	}
	if c.HTTPWriteTimeout == 0 {
		c.HTTPWriteTimeout = defaults.HTTPWriteTimeout
	}
	if c.HTTPIdleTimeout == 0 {
		c.HTTPIdleTimeout = defaults.HTTPIdleTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if len(c.AllowedMethods) == 0 {
		c.AllowedMethods = defaults.AllowedMethods
	}
	if len(c.AllowedHeaders) == 0 {
		c.AllowedHeaders = defaults.AllowedHeaders
	}
	if c.CORSMaxAge == 0 {
		c.CORSMaxAge = defaults.CORSMaxAge
	}
	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = defaults.RateLimit.Requests
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = defaults.RateLimit.Window
	}
	if c.RateLimit.WriteRequests == 0 {
		c.RateLimit.WriteRequests = defaults.RateLimit.WriteRequests
	}
	if c.RateLimit.WriteWindow == 0 {
		c.RateLimit.WriteWindow = defaults.RateLimit.WriteWindow
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = defaults.Auth.Issuer
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = defaults.Auth.TokenTTL
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("OFFERDEX_HTTP_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("OFFERDEX_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HTTPPort = port
		}
	}
	if v := os.Getenv("OFFERDEX_AUTH_SECRET"); v != "" {
		c.Auth.Secret = v
	}
	if v := os.Getenv("OFFERDEX_AUTH_ENABLED"); v != "" {
		c.Auth.Enabled = v == "true" || v == "1"
	}
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be in 1..65535, got %d", c.HTTPPort)
	}
	if c.HTTPReadTimeout < 0 || c.HTTPWriteTimeout < 0 || c.HTTPIdleTimeout < 0 {
		return fmt.Errorf("http timeouts must not be negative")
	}
	if c.Auth.Enabled && c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required when auth is enabled")
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.Requests <= 0 {
			return fmt.Errorf("rate_limit.requests must be positive, got %d", c.RateLimit.Requests)
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate_limit.window must be positive, got %s", c.RateLimit.Window)
		}
	}
	return nil
}
