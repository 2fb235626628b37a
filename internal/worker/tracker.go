// Package worker consumes scrape tasks and runs them through the job
// lifecycle.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pagesift/bookstore-scraper/internal/catalog"
	"github.com/pagesift/bookstore-scraper/internal/metrics"
	"github.com/pagesift/bookstore-scraper/internal/storage"
)

// IDGenerator mints job identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Tracker records the lifecycle of every scrape as a job row: PENDING on
// creation, RUNNING while the work function executes, then exactly one
// terminal transition to COMPLETED or FAILED.
type Tracker struct {
	jobs   storage.JobStore
	ids    IDGenerator
	clock  catalog.Clock
	logger *zap.Logger
}

// NewTracker builds a Tracker.
func NewTracker(jobs storage.JobStore, ids IDGenerator, clock catalog.Clock, logger *zap.Logger) *Tracker {
	return &Tracker{jobs: jobs, ids: ids, clock: clock, logger: logger}
}

// Run executes fn under a tracked job. fn returns the number of items the
// scrape produced. The returned job ID is set even when fn fails.
func (t *Tracker) Run(ctx context.Context, targetURL string, targetType catalog.TargetType, fn func(context.Context) (int, error)) (string, error) {
	id, err := t.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("mint job id: %w", err)
	}

	if err := t.jobs.Create(ctx, catalog.Job{
		ID:         id,
		TargetURL:  targetURL,
		TargetType: targetType,
		Status:     catalog.JobPending,
	}); err != nil {
		return id, fmt.Errorf("create job: %w", err)
	}

	if err := t.jobs.UpdateStatus(ctx, id, catalog.JobRunning, "", 0, 0); err != nil {
		return id, fmt.Errorf("mark job running: %w", err)
	}

	start := t.clock.Now()
	items, runErr := fn(ctx)
	durationMs := t.clock.Now().Sub(start).Milliseconds()

	status := catalog.JobCompleted
	errText := ""
	if runErr != nil {
		status = catalog.JobFailed
		errText = runErr.Error()
	}
	if err := t.jobs.UpdateStatus(ctx, id, status, errText, durationMs, items); err != nil {
		t.logger.Error("final job status update failed",
			zap.String("job_id", id), zap.String("status", string(status)), zap.Error(err))
	}
	metrics.ObserveJob(string(status))

	if runErr != nil {
		return id, runErr
	}
	return id, nil
}
