package cmdlog

import (
	"time"

	"reelrank/internal/logging"
	"reelrank/internal/metrics"
)

// Run executes one CLI command, counting and logging its outcome.
func Run(cmd string, f func() error) error {
	metrics.IncCommandRun(cmd)
	start := time.Now()
	err := f()
	took := time.Since(start).Milliseconds()
	if err != nil {
		metrics.IncCommandError(cmd)
		logging.Error(cmd+"_error", map[string]any{"error": err.Error(), "took_ms": took})
	} else {
		logging.Info(cmd+"_ok", map[string]any{"took_ms": took})
	}
	return err
}
