package batch

import (
	"context"
	"errors"
	"fmt"

	"socialpulse/internal/jobmon"
	"socialpulse/internal/logging"
	"socialpulse/internal/quota"
)

// Source supplies a paged view over items of type T: a total count and a
// 0-based page fetch that returns an empty slice past the end.
type Source[T any] struct {
	Count func(ctx context.Context) (int, error)
	Page  func(ctx context.Context, page int) ([]T, error)
}

// Run drives src page by page, applying process to every item under the
// named job. A failing item is recorded and skipped; the loop keeps going.
// Quota exhaustion (quota.ErrExhausted anywhere in the item error chain)
// stops the whole batch early, keeping partial progress. Count/page errors
// abort the run, mark the job failed, and are returned to the caller.
func Run[T any](ctx context.Context, mon *jobmon.Registry, jobName string, src Source[T], id func(T) string, process func(context.Context, T) error) error {
	mon.Start(jobName)
	total, err := src.Count(ctx)
	if err != nil {
		mon.Fail(jobName, err.Error())
		return fmt.Errorf("%s: count: %w", jobName, err)
	}
	processed := 0
	var failed []string

	for page := 0; ; page++ {
		items, err := src.Page(ctx, page)
		if err != nil {
			mon.Fail(jobName, err.Error())
			return fmt.Errorf("%s: page %d: %w", jobName, page, err)
		}
		if len(items) == 0 {
			break
		}
		for _, it := range items {
			if err := process(ctx, it); err != nil {
				if errors.Is(err, quota.ErrExhausted) {
					logging.Warn("batch_quota_stop", map[string]any{
						"job": jobName, "processed": processed, "total": total,
					})
					mon.Fail(jobName, quota.ErrExhausted.Error())
					return fmt.Errorf("%s: %w", jobName, quota.ErrExhausted)
				}
				failed = append(failed, id(it))
				logging.Warn("batch_item_failed", map[string]any{
					"job": jobName, "item": id(it), "error": err.Error(),
				})
			}
			processed++
			mon.Progress(jobName, processed, total)
		}
	}
	if len(failed) > 0 {
		logging.Warn("batch_failures", map[string]any{"job": jobName, "failed_ids": failed})
	}
	mon.Succeed(jobName)
	return nil
}
