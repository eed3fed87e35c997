package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"offerdex/pkg/model"
)

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, model.Duration(10*time.Second), cfg.HTTPReadTimeout)
	assert.Equal(t, model.Duration(30*time.Second), cfg.HTTPWriteTimeout)
	assert.Equal(t, model.Duration(60*time.Second), cfg.HTTPIdleTimeout)
	assert.Equal(t, model.Duration(10*time.Second), cfg.ShutdownTimeout)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.False(t, cfg.Auth.Enabled)
	assert.Equal(t, "offerdex", cfg.Auth.Issuer)
}

func TestConfig_ApplyDefaults(t *testing.T) {
	tests := []struct {
		name    string
		initial Config
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "empty config gets all defaults",
			initial: Config{},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "localhost", cfg.Host)
				assert.Equal(t, 8080, cfg.HTTPPort)
				assert.Equal(t, model.Duration(10*time.Second), cfg.HTTPReadTimeout)
				assert.Equal(t, model.Duration(30*time.Second), cfg.HTTPWriteTimeout)
				assert.Equal(t, model.Duration(60*time.Second), cfg.HTTPIdleTimeout)
				assert.Equal(t, model.Duration(10*time.Second), cfg.ShutdownTimeout)
				assert.NotEmpty(t, cfg.AllowedMethods)
				assert.NotEmpty(t, cfg.AllowedHeaders)
				assert.Equal(t, 100, cfg.RateLimit.Requests)
				assert.Equal(t, 20, cfg.RateLimit.WriteRequests)
				assert.Equal(t, model.Duration(24*time.Hour), cfg.Auth.TokenTTL)
			},
		},
		{
			name: "custom values preserved",
			initial: Config{
				Host:             "0.0.0.0",
				HTTPPort:         8081,
				HTTPReadTimeout:  model.Duration(30 * time.Second),
				HTTPWriteTimeout: model.Duration(30 * time.Second),
				HTTPIdleTimeout:  model.Duration(120 * time.Second),
				ShutdownTimeout:  model.Duration(30 * time.Second),
				EnableCORS:       true,
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "0.0.0.0", cfg.Host)
				assert.Equal(t, 8081, cfg.HTTPPort)
				assert.Equal(t, model.Duration(30*time.Second), cfg.HTTPReadTimeout)
				assert.Equal(t, model.Duration(30*time.Second), cfg.HTTPWriteTimeout)
				assert.Equal(t, model.Duration(120*time.Second), cfg.HTTPIdleTimeout)
				assert.Equal(t, model.Duration(30*time.Second), cfg.ShutdownTimeout)
				assert.True(t, cfg.EnableCORS)
			},
		},
		{
			name: "partial config gets remaining defaults",
			initial: Config{
				Host:     "prod.example.com",
				HTTPPort: 80,
				// Other fields zero, should get defaults
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "prod.example.com", cfg.Host)
				assert.Equal(t, 80, cfg.HTTPPort)
				assert.Equal(t, model.Duration(10*time.Second), cfg.HTTPReadTimeout)
				assert.Equal(t, model.Duration(60*time.Second), cfg.HTTPIdleTimeout)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			cfg.ApplyDefaults()
			tt.check(t, &cfg)
		})
	}
}

func TestConfig_ApplyEnvOverrides(t *testing.T) {
	t.Setenv("OFFERDEX_HTTP_HOST", "0.0.0.0")
	t.Setenv("OFFERDEX_HTTP_PORT", "9999")
	t.Setenv("OFFERDEX_AUTH_SECRET", "env-secret")
	t.Setenv("OFFERDEX_AUTH_ENABLED", "true")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 9999, cfg.HTTPPort)
	assert.Equal(t, "env-secret", cfg.Auth.Secret)
	assert.True(t, cfg.Auth.Enabled)
}

func TestConfig_ApplyEnvOverrides_BadPort(t *testing.T) {
	t.Setenv("OFFERDEX_HTTP_PORT", "not-a-number")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	// Unparseable port leaves the configured value alone
	assert.Equal(t, 8080, cfg.HTTPPort)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	bad := DefaultConfig()
	bad.HTTPPort = -1
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.HTTPPort = 70000
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.Auth.Enabled = true
	err := bad.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "auth.secret")

	ok := DefaultConfig()
	ok.Auth.Enabled = true
	ok.Auth.Secret = "s3cret"
	assert.NoError(t, ok.Validate())

	bad = DefaultConfig()
	bad.RateLimit.Enabled = true
	bad.RateLimit.Requests = 0
	assert.Error(t, bad.Validate())
}
