package cmdlog

import (
	"time"

	"socialpulse/internal/logging"
	"socialpulse/internal/metrics"
)

// Run wraps one CLI subcommand: counts the invocation, times it, and
// logs the outcome under the command's name.
func Run(cmd string, f func() error) error {
	metrics.IncCommandRun(cmd)
	start := time.Now()
	err := f()
	if err != nil {
		metrics.IncCommandError(cmd)
		logging.Error(cmd+"_error", map[string]any{"error": err.Error(), "took": time.Since(start).String()})
		return err
	}
	logging.Info(cmd+"_ok", map[string]any{"took": time.Since(start).String()})
	return nil
}
