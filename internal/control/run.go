package control

import (
	"context"
	"time"
)

// Run executes the reconciliation loop until the context is cancelled.
// The startup sweep of abandoned commands happens first, then a full
// refresh pass on every tick of the configured interval.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.SweepAbandoned(ctx); err != nil {
		return err
	}

	interval := m.cfg.Interval()
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("reconciliation loop started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("reconciliation loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.RefreshAll(ctx); err != nil {
				if ctx.Err() != nil {
					m.logger.Info("reconciliation loop stopped")
					return ctx.Err()
				}
				m.logger.Error("refresh pass failed", "error", err)
			}
		}
	}
}
