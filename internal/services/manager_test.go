package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerdex/internal/config"
	"offerdex/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.HTTPPort = 0
	cfg.Ledger.ReplaySettle = model.Duration(30 * time.Millisecond)
	cfg.Ledger.ReplayWait = model.Duration(2 * time.Second)
	return cfg
}

func TestManagerInitWiresServices(t *testing.T) {
	m := NewManager(testConfig(), testLogger())
	require.NoError(t, m.Init(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		m.Shutdown(ctx)
	})

	assert.NotNil(t, m.Catalog())
	assert.NotNil(t, m.Ledger())
	assert.Nil(t, m.Tokens(), "auth disabled by default")
	assert.NotNil(t, m.bus, "self-contained node gets the in-process bus")
}

func TestManagerInitWithAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Auth.Enabled = true
	cfg.Server.Auth.Secret = "0123456789abcdef0123456789abcdef"

	m := NewManager(cfg, testLogger())
	require.NoError(t, m.Init(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		m.Shutdown(ctx)
	})

	require.NotNil(t, m.Tokens())
	token, err := m.Tokens().GenerateToken("ops")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestManagerInitWithAuthMisconfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Auth.Enabled = true
	cfg.Server.Auth.Secret = ""

	m := NewManager(cfg, testLogger())
	require.Error(t, m.Init(context.Background()))
}

func TestManagerRunUntilCanceled(t *testing.T) {
	m := NewManager(testConfig(), testLogger())
	require.NoError(t, m.Init(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	// The replay gate opens once the quiet feed settles.
	require.Eventually(t, func() bool {
		return m.Ledger().Stats().CaughtUp
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	m.Shutdown(shutdownCtx)
}

func TestManagerShutdownBeforeInit(t *testing.T) {
	m := NewManager(testConfig(), testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	m.Shutdown(ctx)
}
