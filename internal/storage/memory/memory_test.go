package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pagesift/bookstore-scraper/internal/catalog"
	"github.com/pagesift/bookstore-scraper/internal/storage"
)

func TestJobStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewJobStore()

	require.NoError(t, s.Create(ctx, catalog.Job{ID: "job-1", Status: catalog.JobPending}))
	require.NoError(t, s.UpdateStatus(ctx, "job-1", catalog.JobRunning, "", 0, 0))
	require.NoError(t, s.UpdateStatus(ctx, "job-1", catalog.JobCompleted, "", 500, 12))

	job, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, catalog.JobCompleted, job.Status)
	require.Equal(t, int64(500), job.DurationMs)
	require.Equal(t, 12, job.ItemsFound)
	require.False(t, job.StartedAt.IsZero(), "running transition must stamp the start time")
	require.NotNil(t, job.FinishedAt, "terminal transition must stamp the finish time")
	require.False(t, job.FinishedAt.Before(job.StartedAt))
}

func TestJobStoreRefusesSecondTerminalTransition(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewJobStore()

	require.NoError(t, s.Create(ctx, catalog.Job{ID: "job-1", Status: catalog.JobPending}))
	require.NoError(t, s.UpdateStatus(ctx, "job-1", catalog.JobFailed, "boom", 10, 0))

	err := s.UpdateStatus(ctx, "job-1", catalog.JobCompleted, "", 20, 5)
	require.ErrorIs(t, err, storage.ErrTerminalTransition)

	job, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, catalog.JobFailed, job.Status)
	require.Equal(t, "boom", job.ErrorLog)
}

func TestJobStoreUnknownJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewJobStore()
	require.ErrorIs(t, s.UpdateStatus(ctx, "nope", catalog.JobRunning, "", 0, 0), storage.ErrNotFound)
	_, err := s.Get(ctx, "nope")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCatalogStoreUpsertIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewCatalogStore()

	batch := []catalog.Product{
		{SourceID: "b1", Title: "Book One"},
		{SourceID: "b2", Title: "Book Two"},
	}
	count, err := s.UpsertBatch(ctx, 7, batch)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	// Replaying the same page must not inflate the count.
	count, err = s.UpsertBatch(ctx, 7, batch)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	count, err = s.UpsertBatch(ctx, 7, []catalog.Product{{SourceID: "b3", Title: "Book Three"}})
	require.NoError(t, err)
	require.Equal(t, 3, count)

	other, err := s.CountProducts(ctx, 99)
	require.NoError(t, err)
	require.Zero(t, other)
}

func TestCatalogStoreUpsertCategories(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewCatalogStore()

	nav := catalog.Navigation{Categories: []catalog.Category{
		{Slug: "fiction", Title: "Fiction", Children: []catalog.Category{
			{Slug: "classics", Title: "Classics"},
		}},
		{Slug: "travel", Title: "Travel"},
	}}
	written, err := s.UpsertCategories(ctx, nav)
	require.NoError(t, err)
	require.Equal(t, 3, written)

	count, err := s.CountCategories(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestCatalogStoreUpdateProductDetail(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewCatalogStore()

	_, err := s.UpsertBatch(ctx, 1, []catalog.Product{{SourceID: "b1", Title: "Book One"}})
	require.NoError(t, err)

	detail := catalog.ProductDetail{Description: "desc", ImageURL: "https://x.test/full.jpg"}
	require.NoError(t, s.UpdateProductDetail(ctx, "b1", detail))

	got, ok := s.Detail("b1")
	require.True(t, ok)
	require.Equal(t, "desc", got.Description)

	require.ErrorIs(t, s.UpdateProductDetail(ctx, "missing", detail), storage.ErrNotFound)
}
