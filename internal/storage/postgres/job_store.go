package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pagesift/bookstore-scraper/internal/catalog"
	"github.com/pagesift/bookstore-scraper/internal/storage"
)

// JobStore persists job lifecycle rows in the jobs table.
type JobStore struct {
	pool DB
}

// NewJobStore builds a JobStore on an existing pool.
func NewJobStore(pool DB) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool}, nil
}

// Create inserts a new job row.
func (s *JobStore) Create(ctx context.Context, job catalog.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO jobs (id, target_url, target_type, status, created_at)
VALUES ($1, $2, $3, $4, now())`,
		job.ID, job.TargetURL, string(job.TargetType), string(job.Status))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateStatus transitions a job. The WHERE clause restricts updates to
// non-terminal rows, so a finished job can never flip status again.
func (s *JobStore) UpdateStatus(ctx context.Context, id string, status catalog.JobStatus, errText string, durationMs int64, itemsFound int) error {
	var tag interface{ RowsAffected() int64 }
	var err error

	switch status {
	case catalog.JobRunning:
		tag, err = s.pool.Exec(ctx, `
UPDATE jobs SET status = $2, started_at = now()
WHERE id = $1 AND status = $3`,
			id, string(status), string(catalog.JobPending))
	case catalog.JobCompleted, catalog.JobFailed:
		tag, err = s.pool.Exec(ctx, `
UPDATE jobs SET status = $2, error_log = NULLIF($3, ''), duration_ms = $4, items_found = $5, finished_at = now()
WHERE id = $1 AND status IN ($6, $7)`,
			id, string(status), errText, durationMs, itemsFound,
			string(catalog.JobPending), string(catalog.JobRunning))
	default:
		return fmt.Errorf("unsupported status transition to %s", status)
	}
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, id); errors.Is(getErr, storage.ErrNotFound) {
			return storage.ErrNotFound
		}
		return storage.ErrTerminalTransition
	}
	return nil
}

// Get loads a single job or returns storage.ErrNotFound.
func (s *JobStore) Get(ctx context.Context, id string) (catalog.Job, error) {
	var (
		job        catalog.Job
		targetType string
		status     string
		startedAt  *time.Time
		errText    *string
	)
	err := s.pool.QueryRow(ctx, `
SELECT id, target_url, target_type, status, started_at, finished_at,
       COALESCE(duration_ms, 0), COALESCE(items_found, 0), error_log
FROM jobs WHERE id = $1`, id).Scan(
		&job.ID, &job.TargetURL, &targetType, &status,
		&startedAt, &job.FinishedAt, &job.DurationMs, &job.ItemsFound, &errText)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Job{}, storage.ErrNotFound
	}
	if err != nil {
		return catalog.Job{}, fmt.Errorf("select job: %w", err)
	}
	job.TargetType = catalog.TargetType(targetType)
	job.Status = catalog.JobStatus(status)
	if startedAt != nil {
		job.StartedAt = *startedAt
	}
	if errText != nil {
		job.ErrorLog = *errText
	}
	return job, nil
}
