// Package storage declares the persistence interfaces for jobs, catalog
// data and crawl progress.
package storage

import (
	"context"
	"errors"

	"github.com/pagesift/bookstore-scraper/internal/catalog"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrTerminalTransition signals an attempt to move a job out of a
// terminal status.
var ErrTerminalTransition = errors.New("job already in terminal status")

// JobStore persists scraping job lifecycle records.
type JobStore interface {
	// Create inserts a new job in PENDING status.
	Create(ctx context.Context, job catalog.Job) error
	// UpdateStatus transitions a job. Jobs already in a terminal status
	// are never modified; such calls return ErrTerminalTransition.
	UpdateStatus(ctx context.Context, id string, status catalog.JobStatus, errText string, durationMs int64, itemsFound int) error
	// Get loads a single job or returns ErrNotFound.
	Get(ctx context.Context, id string) (catalog.Job, error)
}

// CatalogStore persists extracted catalog data.
type CatalogStore interface {
	// UpsertBatch writes one page of products keyed by source ID, then
	// recomputes the owning category's product count from the table.
	// The whole page commits or rolls back as a unit. The returned count
	// is the category total after the write.
	UpsertBatch(ctx context.Context, categoryID int64, products []catalog.Product) (int, error)
	// CountProducts returns the current product count of a category.
	CountProducts(ctx context.Context, categoryID int64) (int, error)
	// UpsertCategories writes the navigation tree keyed by slug and
	// returns the number of categories written.
	UpsertCategories(ctx context.Context, nav catalog.Navigation) (int, error)
	// CountCategories returns the number of stored categories.
	CountCategories(ctx context.Context) (int, error)
	// UpdateProductDetail enriches an existing product row.
	UpdateProductDetail(ctx context.Context, sourceID string, detail catalog.ProductDetail) error
}

// ProgressCache holds short-lived crawl progress snapshots per category.
type ProgressCache interface {
	Set(categoryID int64, p catalog.Progress)
	Get(categoryID int64) (catalog.Progress, bool)
	Delete(categoryID int64)
}
