package store

import (
	"context"
	"log/slog"
	"time"
)

// StartSweeper runs a background goroutine that periodically releases live
// sessions the operator abandoned. A session an operator joined and then left
// idle past ttl reverts to AI-answered so visitors are never stuck waiting on
// a human who walked away.
func StartSweeper(ctx context.Context, s Store, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "idle_ttl", ttl)

		for {
			select {
			case <-ticker.C:
				released, err := s.ReleaseIdleSessions(ctx, ttl)
				if err != nil {
					slog.Error("Sweeper failed to release idle sessions", "error", err)
					continue
				}
				if released > 0 {
					slog.Info("Sweeper released idle live sessions", "count", released)
				}
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
