package jobs

import (
	"context"
	"errors"
	"time"

	"socialpulse/internal/collect"
	"socialpulse/internal/logging"
	"socialpulse/internal/metrics"
	"socialpulse/internal/quota"
	"socialpulse/internal/schedule"
)

// RunCollectionOnce runs the full collection cycle: account metrics, post
// metrics, post comments, then the re-analysis pass for comments still
// missing a sentiment. Quota exhaustion in any stage skips the remaining
// stages; the batch class budget is shared, so pressing on is pointless.
func RunCollectionOnce(ctx context.Context, svc *collect.Service) error {
	start := time.Now()
	metrics.CollectRuns.Inc()
	stages := []struct {
		name string
		run  func(context.Context) error
	}{
		{"account_metrics", svc.CollectAccountMetrics},
		{"post_metrics", svc.CollectPostMetrics},
		{"post_comments", svc.CollectPostComments},
	}
	for _, st := range stages {
		if err := st.run(ctx); err != nil {
			metrics.CollectErrors.Inc()
			if errors.Is(err, quota.ErrExhausted) {
				logging.Warn("collection_quota_stop", map[string]any{"stage": st.name})
				return err
			}
			return err
		}
	}
	// Leftover budget work: backfill posts tracked since the last cycle
	// on the background class, then re-drive unlabeled comments. Neither
	// fails the cycle.
	if err := svc.BackfillComments(ctx, 50); err != nil {
		logging.Warn("backfill_error", map[string]any{"error": err.Error()})
	}
	if err := svc.ReanalyzePending(ctx, 500); err != nil {
		logging.Error("reanalyze_error", map[string]any{"error": err.Error()})
	}
	logging.Info("collection_once", map[string]any{"took": time.Since(start).String()})
	metrics.ObserveCollectDuration(start)
	return nil
}

// RunCollectionLoop runs RunCollectionOnce on a ticker until ctx is
// cancelled, deferring ticks that land inside quiet hours.
func RunCollectionLoop(ctx context.Context, svc *collect.Service, interval time.Duration, quietHours []int) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	// run immediately
	runIfAwake(ctx, svc, interval, quietHours)
	for {
		select {
		case <-ctx.Done():
			logging.Info("collection_loop_stop", nil)
			return ctx.Err()
		case <-t.C:
			runIfAwake(ctx, svc, interval, quietHours)
		}
	}
}

func runIfAwake(ctx context.Context, svc *collect.Service, interval time.Duration, quietHours []int) {
	now := time.Now().UTC()
	if next := schedule.NextWindow(now, interval, quietHours); !next.Equal(now) {
		logging.Info("collection_deferred", map[string]any{"next_window": next.Format(time.RFC3339)})
		return
	}
	if err := RunCollectionOnce(ctx, svc); err != nil {
		logging.Error("collection_once_error", map[string]any{"error": err.Error()})
	}
}
