package jobs

import (
	"context"
	"time"

	"reelrank/internal/logging"
	"reelrank/internal/metrics"
)

// Rescorer recomputes stored trending scores against the current clock.
type Rescorer interface {
	Rescore(ctx context.Context) (int, error)
}

// RunRescoreOnce runs one rescore pass and publishes the trending count.
func RunRescoreOnce(ctx context.Context, r Rescorer) (int, error) {
	start := time.Now()
	n, err := r.Rescore(ctx)
	if err != nil {
		metrics.RescoreErrors.Inc()
		return n, err
	}
	metrics.RescoreRuns.Inc()
	metrics.TrendingItems.Set(float64(n))
	logging.Info("rescore_once", map[string]any{"trending": n, "took_ms": time.Since(start).Milliseconds()})
	return n, nil
}

// RunRescoreLoop runs RunRescoreOnce on a ticker until ctx is cancelled.
func RunRescoreLoop(ctx context.Context, r Rescorer, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	// run immediately
	if _, err := RunRescoreOnce(ctx, r); err != nil {
		logging.Error("rescore_once_error", map[string]any{"error": err.Error()})
	}
	for {
		select {
		case <-ctx.Done():
			logging.Info("rescore_loop_stop", nil)
			return ctx.Err()
		case <-t.C:
			if _, err := RunRescoreOnce(ctx, r); err != nil {
				logging.Error("rescore_once_error", map[string]any{"error": err.Error()})
			}
		}
	}
}
