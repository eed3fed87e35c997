// Package services assembles a node from its parts: registry, catalog,
// record feed, watch stream, and the HTTP server. The manager owns
// construction order, the replay gate at startup, and teardown order.
package services

import (
	"log/slog"

	"offerdex/internal/catalog"
	"offerdex/internal/config"
	"offerdex/internal/gateway/realtime"
	"offerdex/internal/ledger"
	"offerdex/internal/pubsub"
	"offerdex/internal/registry"
	"offerdex/internal/server"
)

type Manager struct {
	cfg    *config.Config
	logger *slog.Logger

	bus      pubsub.Provider
	registry *registry.Registry
	catalog  catalog.LocalService
	feed     ledger.Service
	realtime *realtime.Server
	server   server.Service
	tokens   *server.TokenService
}

func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		logger: logger,
	}
}

// Catalog exposes the catalog service, available after Init.
func (m *Manager) Catalog() catalog.Service {
	return m.catalog
}

// Ledger exposes the record feed, available after Init.
func (m *Manager) Ledger() ledger.Service {
	return m.feed
}

// Tokens returns the bearer token service, or nil when auth is
// disabled.
func (m *Manager) Tokens() *server.TokenService {
	return m.tokens
}
