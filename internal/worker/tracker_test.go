package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pagesift/bookstore-scraper/internal/catalog"
	"github.com/pagesift/bookstore-scraper/internal/metrics"
	"github.com/pagesift/bookstore-scraper/internal/storage/memory"
)

type fakeIDs struct {
	next int
}

func (f *fakeIDs) NewID() (string, error) {
	f.next++
	return "job-" + string(rune('0'+f.next)), nil
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.now = c.now.Add(250 * time.Millisecond)
	return c.now
}

func newTestTracker(t *testing.T) (*Tracker, *memory.JobStore) {
	t.Helper()
	metrics.Init()
	jobs := memory.NewJobStore()
	clock := &fixedClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewTracker(jobs, &fakeIDs{}, clock, zap.NewNop()), jobs
}

func TestTrackerRunSuccess(t *testing.T) {
	t.Parallel()

	tracker, jobs := newTestTracker(t)

	id, err := tracker.Run(context.Background(), "https://x.test/cat", catalog.TargetCategory, func(context.Context) (int, error) {
		return 12, nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := jobs.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, catalog.JobCompleted, job.Status)
	require.Equal(t, 12, job.ItemsFound)
	require.Equal(t, int64(250), job.DurationMs)
	require.Empty(t, job.ErrorLog)
}

func TestTrackerRunFailure(t *testing.T) {
	t.Parallel()

	tracker, jobs := newTestTracker(t)

	sentinel := errors.New("category unreachable")
	id, err := tracker.Run(context.Background(), "https://x.test/cat", catalog.TargetCategory, func(context.Context) (int, error) {
		return 0, sentinel
	})
	require.ErrorIs(t, err, sentinel)

	job, getErr := jobs.Get(context.Background(), id)
	require.NoError(t, getErr)
	require.Equal(t, catalog.JobFailed, job.Status)
	require.Equal(t, "category unreachable", job.ErrorLog)
}

func TestTrackerRunKeepsPartialItemsOnFailure(t *testing.T) {
	t.Parallel()

	tracker, jobs := newTestTracker(t)

	id, err := tracker.Run(context.Background(), "https://x.test/cat", catalog.TargetCategory, func(context.Context) (int, error) {
		return 40, errors.New("aborted after first page")
	})
	require.Error(t, err)

	job, getErr := jobs.Get(context.Background(), id)
	require.NoError(t, getErr)
	require.Equal(t, catalog.JobFailed, job.Status)
	require.Equal(t, 40, job.ItemsFound)
}
