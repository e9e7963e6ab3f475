package jobs

import (
	"context"
	"fmt"
	"time"

	"synthbridge/internal/logging"
	"synthbridge/internal/notifications"
)

// BatchEntry is the outcome of one job in a batch.
type BatchEntry struct {
	Job     Job
	Result  *Result
	Err     error
	Skipped bool
}

// BatchSummary collects per-job outcomes in manifest order.
type BatchSummary struct {
	Entries   []BatchEntry
	Succeeded int
	Failed    int
	Skipped   int
}

// RunBatch runs jobs sequentially. Without keepGoing the first failure
// skips the rest. The returned error wraps the first failure. A single
// summary notification replaces per-job notices.
func (r *Runner) RunBatch(ctx context.Context, jobs []Job, keepGoing bool) (BatchSummary, error) {
	start := time.Now()
	summary := BatchSummary{Entries: make([]BatchEntry, 0, len(jobs))}
	var firstErr error
	stop := false
	for _, job := range jobs {
		if stop || ctx.Err() != nil {
			summary.Entries = append(summary.Entries, BatchEntry{Job: job, Skipped: true})
			summary.Skipped++
			continue
		}
		result, err := r.run(ctx, job)
		summary.Entries = append(summary.Entries, BatchEntry{Job: job, Result: result, Err: err})
		if err != nil {
			summary.Failed++
			if firstErr == nil {
				firstErr = err
			}
			stop = !keepGoing
			continue
		}
		summary.Succeeded++
	}

	r.logger.Info("batch finished",
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("failed", summary.Failed),
		logging.Int("skipped", summary.Skipped),
		logging.Duration("duration", time.Since(start)),
		logging.String(logging.FieldEventType, "batch_finished"),
	)
	r.publish(ctx, notifications.EventBatchCompleted, notifications.Payload{
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
		"duration":  time.Since(start),
	})

	if firstErr != nil {
		return summary, fmt.Errorf("%d of %d jobs failed: %w", summary.Failed, len(jobs), firstErr)
	}
	if err := ctx.Err(); err != nil && summary.Skipped > 0 {
		return summary, fmt.Errorf("batch interrupted with %d jobs left: %w", summary.Skipped, err)
	}
	return summary, nil
}
