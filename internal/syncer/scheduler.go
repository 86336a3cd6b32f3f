package syncer

import (
	"context"
	"log/slog"
	"time"
)

const shutdownDrainTimeout = 30 * time.Second

// Scheduler triggers periodic sync runs. It is scheduler-only glue: all sync
// semantics (mutual exclusion, retries, cursor) live in the Coordinator.
type Scheduler struct {
	coordinator *Coordinator
	interval    time.Duration
	nowFn       func() time.Time
}

// NewScheduler creates a ticker-driven scheduler around a coordinator.
func NewScheduler(coordinator *Coordinator, interval time.Duration) *Scheduler {
	return &Scheduler{
		coordinator: coordinator,
		interval:    interval,
		nowFn:       func() time.Time { return time.Now().UTC() },
	}
}

// Start begins periodic syncing and runs until the context is cancelled.
// A failed run is logged and retried on the next tick; queries keep serving
// from the cached state in between.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("[Scheduler] Starting sync scheduler", "interval", s.interval)

	// Initial catch-up run so a restart does not wait a full interval.
	s.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-ctx.Done():
			slog.Info("[Scheduler] Stopping (context cancelled)")

			// Final run so shutdown does not strand events fetched since the
			// last tick. Uses a fresh context; the old one is already dead.
			// A run still in flight under the old context cannot serve the
			// drain, so detach from it first.
			s.coordinator.ForgetInFlight()
			drainCtx, cancel := context.WithTimeout(context.Background(), shutdownDrainTimeout)
			defer cancel()
			s.runOnce(drainCtx)

			slog.Info("[Scheduler] Final sync complete")
			return nil
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.coordinator.Sync(ctx, s.nowFn(), 0); err != nil {
		slog.Error("[Scheduler] Sync failed; serving stale data until next tick", "error", err)
	}
}
