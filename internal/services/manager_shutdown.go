package services

import (
	"context"
)

// Shutdown stops the services in reverse start order: listener first so
// no new work arrives, feed last-but-one so applied state is settled,
// bus at the end. Errors are logged, not returned; teardown always runs
// to completion.
func (m *Manager) Shutdown(ctx context.Context) {
	if m.server != nil {
		if err := m.server.Stop(ctx); err != nil {
			m.logger.Error("Error stopping HTTP server", "error", err)
		}
	}
	if m.realtime != nil {
		if err := m.realtime.Stop(ctx); err != nil {
			m.logger.Error("Error stopping watch stream", "error", err)
		}
	}
	if m.feed != nil {
		if err := m.feed.Stop(ctx); err != nil {
			m.logger.Error("Error stopping record feed", "error", err)
		}
	}
	if m.catalog != nil {
		if err := m.catalog.Stop(ctx); err != nil {
			m.logger.Error("Error stopping catalog", "error", err)
		}
	}
	if m.bus != nil {
		if err := m.bus.Close(); err != nil {
			m.logger.Error("Error closing message bus", "error", err)
		}
	}
	m.logger.Info("Shutdown complete")
}
