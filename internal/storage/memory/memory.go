// Package memory provides mutex-guarded in-memory store implementations
// for local runs and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pagesift/bookstore-scraper/internal/catalog"
	"github.com/pagesift/bookstore-scraper/internal/storage"
)

// JobStore keeps jobs in a map.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]catalog.Job
}

// NewJobStore creates an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]catalog.Job)}
}

// Create inserts a new job.
func (s *JobStore) Create(_ context.Context, job catalog.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

// UpdateStatus transitions a job, refusing to modify terminal jobs.
func (s *JobStore) UpdateStatus(_ context.Context, id string, status catalog.JobStatus, errText string, durationMs int64, itemsFound int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return storage.ErrNotFound
	}
	if job.Status.Terminal() {
		return storage.ErrTerminalTransition
	}
	now := time.Now().UTC()
	job.Status = status
	if status == catalog.JobRunning && job.StartedAt.IsZero() {
		job.StartedAt = now
	}
	if status.Terminal() {
		job.FinishedAt = &now
		job.ErrorLog = errText
		job.DurationMs = durationMs
		job.ItemsFound = itemsFound
	}
	s.jobs[id] = job
	return nil
}

// Get loads a job or returns storage.ErrNotFound.
func (s *JobStore) Get(_ context.Context, id string) (catalog.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return catalog.Job{}, storage.ErrNotFound
	}
	return job, nil
}

type productRow struct {
	categoryID int64
	product    catalog.Product
	detail     catalog.ProductDetail
}

// CatalogStore keeps products and categories in maps.
type CatalogStore struct {
	mu         sync.Mutex
	products   map[string]productRow
	categories map[string]catalog.Category
}

// NewCatalogStore creates an empty CatalogStore.
func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		products:   make(map[string]productRow),
		categories: make(map[string]catalog.Category),
	}
}

// UpsertBatch stores products keyed by source ID and returns the category
// count after the write. Replaying the same batch leaves the count unchanged.
func (s *CatalogStore) UpsertBatch(_ context.Context, categoryID int64, products []catalog.Product) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		existing := s.products[p.SourceID]
		existing.categoryID = categoryID
		existing.product = p
		s.products[p.SourceID] = existing
	}
	return s.countLocked(categoryID), nil
}

// CountProducts returns the product count of a category.
func (s *CatalogStore) CountProducts(_ context.Context, categoryID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked(categoryID), nil
}

func (s *CatalogStore) countLocked(categoryID int64) int {
	count := 0
	for _, row := range s.products {
		if row.categoryID == categoryID {
			count++
		}
	}
	return count
}

// UpsertCategories stores the navigation tree keyed by slug.
func (s *CatalogStore) UpsertCategories(_ context.Context, nav catalog.Navigation) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	written := 0
	for _, cat := range nav.Categories {
		s.categories[cat.Slug] = cat
		written++
		for _, child := range cat.Children {
			s.categories[child.Slug] = child
			written++
		}
	}
	return written, nil
}

// CountCategories returns the number of stored categories.
func (s *CatalogStore) CountCategories(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.categories), nil
}

// UpdateProductDetail enriches an existing product.
func (s *CatalogStore) UpdateProductDetail(_ context.Context, sourceID string, detail catalog.ProductDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.products[sourceID]
	if !ok {
		return storage.ErrNotFound
	}
	row.detail = detail
	if detail.ImageURL != "" {
		row.product.ImageURL = detail.ImageURL
	}
	s.products[sourceID] = row
	return nil
}

// Detail returns the stored detail of a product, for tests.
func (s *CatalogStore) Detail(sourceID string) (catalog.ProductDetail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.products[sourceID]
	return row.detail, ok
}
