package services

import (
	"context"
	"fmt"

	"offerdex/internal/catalog"
	"offerdex/internal/gateway"
	"offerdex/internal/gateway/realtime"
	"offerdex/internal/ledger"
	"offerdex/internal/pubsub/memory"
	"offerdex/internal/pubsub/nats"
	"offerdex/internal/registry"
	"offerdex/internal/server"
)

// Init constructs every service and wires the HTTP routes. It does not
// start anything; Run does.
func (m *Manager) Init(ctx context.Context) error {
	if err := m.initBus(ctx); err != nil {
		return err
	}
	m.initCatalog()
	m.initLedger()
	m.initRealtime()
	return m.initServer()
}

// initBus picks the message bus. A configured NATS URL means a shared
// deployment; without one the node runs self-contained on an in-process
// bus, which keeps catalog events and the watch stream working.
func (m *Manager) initBus(ctx context.Context) error {
	url := m.cfg.Ledger.URL
	if url == "" {
		m.logger.Info("No NATS URL configured, running on the in-process bus")
		m.bus = memory.New()
		return nil
	}

	prov := nats.NewProvider(url)
	if err := prov.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	m.logger.Info("Connected to NATS", "url", url)
	m.bus = prov
	return nil
}

func (m *Manager) initCatalog() {
	m.registry = registry.New(m.cfg.Registry)
	m.catalog = catalog.NewService(m.cfg.Catalog, m.registry, m.bus, m.logger)
}

func (m *Manager) initLedger() {
	m.feed = ledger.New(m.cfg.Ledger, m.catalog, m.bus, m.logger)
}

func (m *Manager) initRealtime() {
	m.realtime = realtime.NewServer(realtime.Config{
		Stream:  m.cfg.Catalog.EventsStream,
		Subject: m.cfg.Catalog.EventsSubject,
	}, m.bus, m.logger)
}

func (m *Manager) initServer() error {
	m.server = server.New(m.cfg.Server, m.logger)

	opts := []gateway.ServerOption{gateway.WithLedger(m.feed)}

	if m.cfg.Server.Auth.Enabled {
		tokens, err := server.NewTokenService(m.cfg.Server.Auth)
		if err != nil {
			return fmt.Errorf("creating token service: %w", err)
		}
		m.tokens = tokens
		opts = append(opts, gateway.WithBearerAuth(tokens))
	}

	if limiter := m.server.WriteLimiter(); limiter != nil {
		retryAfter := int(m.cfg.Server.RateLimit.WriteWindow.Std().Seconds())
		opts = append(opts, gateway.WithWriteLimiter(limiter, retryAfter))
	}

	gw := gateway.NewServer(m.catalog, m.realtime, m.logger, opts...)
	gw.RegisterRoutes(m.server.HTTPMux())
	return nil
}
