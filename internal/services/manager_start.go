package services

import (
	"context"
	"fmt"
)

// Run starts every service and serves HTTP until ctx is canceled or
// the listener fails. The HTTP listener opens only after the record
// feed has replayed its backlog (bounded by ledger.replay_wait), so a
// restarted node does not serve an empty registry.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.catalog.Start(ctx); err != nil {
		return fmt.Errorf("starting catalog: %w", err)
	}
	if err := m.feed.Start(ctx); err != nil {
		return fmt.Errorf("starting record feed: %w", err)
	}
	if err := m.realtime.Start(ctx); err != nil {
		return fmt.Errorf("starting watch stream: %w", err)
	}

	if wait := m.cfg.Ledger.ReplayWait.Std(); wait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		err := m.feed.WaitCaughtUp(waitCtx)
		cancel()
		if err != nil {
			// Serve anyway. A follower that waits forever on a quiet
			// feed is worse than one that fills in as records arrive.
			m.logger.Warn("Serving before ledger replay caught up", "error", err)
		}
	}

	return m.server.Start(ctx)
}
