package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pagesift/bookstore-scraper/internal/catalog"
	"github.com/pagesift/bookstore-scraper/internal/metrics"
	"github.com/pagesift/bookstore-scraper/internal/storage"
)

// Persister writes page batches to the catalog store and mirrors crawl
// progress into the cache. Products land as soon as their page is done;
// a crash mid-category keeps everything persisted so far.
type Persister struct {
	store  storage.CatalogStore
	cache  storage.ProgressCache
	logger *zap.Logger
}

// NewPersister builds a Persister.
func NewPersister(store storage.CatalogStore, cache storage.ProgressCache, logger *zap.Logger) *Persister {
	return &Persister{store: store, cache: cache, logger: logger}
}

// PersistBatch upserts one page of products and refreshes the progress
// snapshot. Empty batches are a no-op.
func (p *Persister) PersistBatch(ctx context.Context, categoryID int64, products []catalog.Product, progress catalog.Progress) error {
	if len(products) == 0 {
		return nil
	}
	count, err := p.store.UpsertBatch(ctx, categoryID, products)
	if err != nil {
		metrics.ObserveBatchPersistFailure()
		return fmt.Errorf("upsert batch: %w", err)
	}
	p.cache.Set(categoryID, progress)
	p.logger.Debug("persisted page batch",
		zap.Int64("category_id", categoryID),
		zap.Int("batch_size", len(products)),
		zap.Int("category_total", count),
		zap.Int("page", progress.CurrentPage))
	return nil
}

// ClearProgress drops the category's progress snapshot, marking the crawl
// inactive regardless of how it ended.
func (p *Persister) ClearProgress(categoryID int64) {
	p.cache.Delete(categoryID)
}
