package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pagesift/bookstore-scraper/internal/catalog"
	"github.com/pagesift/bookstore-scraper/internal/metrics"
	"github.com/pagesift/bookstore-scraper/internal/queue"
	"github.com/pagesift/bookstore-scraper/internal/scrape"
	"github.com/pagesift/bookstore-scraper/internal/storage"
)

// Persist failure policies.
const (
	PersistContinue = "continue"
	PersistAbort    = "abort"
)

// Scraper is the crawl surface the worker drives.
type Scraper interface {
	ScrapeCategory(ctx context.Context, targetURL string, maxPages int, onBatch scrape.BatchFunc) (catalog.Result[[]catalog.Product], error)
	ScrapeNavigation(ctx context.Context) (catalog.Result[catalog.Navigation], error)
	ScrapeProductDetail(ctx context.Context, rawURL string) (catalog.ProductDetail, error)
}

// Config controls worker behavior.
type Config struct {
	// PersistFailurePolicy decides what a failed batch write does to the
	// crawl: "continue" logs and keeps scraping, "abort" fails the job.
	PersistFailurePolicy string
}

// Worker consumes tasks from the queue and executes them as tracked jobs.
type Worker struct {
	queue     queue.Queue
	scraper   Scraper
	tracker   *Tracker
	persister *Persister
	store     storage.CatalogStore
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(q queue.Queue, scraper Scraper, tracker *Tracker, persister *Persister, store storage.CatalogStore, cfg Config, logger *zap.Logger) *Worker {
	if cfg.PersistFailurePolicy == "" {
		cfg.PersistFailurePolicy = PersistContinue
	}
	return &Worker{
		queue:     q,
		scraper:   scraper,
		tracker:   tracker,
		persister: persister,
		store:     store,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming tasks until the context finishes or the queue
// closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		metrics.IncActiveWorkers()
		w.process(ctx, task)
		metrics.DecActiveWorkers()
	}
}

func (w *Worker) process(ctx context.Context, task catalog.Task) {
	switch task.TargetType {
	case catalog.TargetCategory:
		w.processCategory(ctx, task)
	case catalog.TargetNavigation:
		w.processNavigation(ctx, task)
	case catalog.TargetProduct:
		w.processProduct(ctx, task)
	default:
		w.logger.Warn("dropping task with unknown target type",
			zap.String("target_type", string(task.TargetType)), zap.String("url", task.URL))
	}
}

func (w *Worker) processCategory(ctx context.Context, task catalog.Task) {
	jobID, err := w.tracker.Run(ctx, task.URL, catalog.TargetCategory, func(ctx context.Context) (int, error) {
		result, err := w.scraper.ScrapeCategory(ctx, task.URL, task.MaxPages, w.batchFunc(task.CategoryID))
		if err != nil {
			return result.TotalItems, err
		}
		if result.PagesScraped == 0 && len(result.Errors) > 0 {
			return 0, fmt.Errorf("no pages scraped: %s", strings.Join(result.Errors, "; "))
		}
		if len(result.Errors) > 0 {
			w.logger.Warn("category crawl finished with page failures",
				zap.String("url", task.URL),
				zap.Int("pages_scraped", result.PagesScraped),
				zap.Strings("errors", result.Errors))
		}
		return result.TotalItems, nil
	})
	// The progress snapshot is cleared on every outcome so the category
	// never reports an active crawl after the job ended.
	w.persister.ClearProgress(task.CategoryID)
	if err != nil {
		w.logger.Error("category job failed",
			zap.String("job_id", jobID), zap.String("url", task.URL), zap.Error(err))
	}
}

func (w *Worker) batchFunc(categoryID int64) scrape.BatchFunc {
	return func(ctx context.Context, products []catalog.Product, progress catalog.Progress) error {
		err := w.persister.PersistBatch(ctx, categoryID, products, progress)
		if err == nil {
			return nil
		}
		if w.cfg.PersistFailurePolicy == PersistAbort {
			return err
		}
		w.logger.Error("batch persist failed; continuing crawl",
			zap.Int64("category_id", categoryID),
			zap.Int("page", progress.CurrentPage),
			zap.Error(err))
		return nil
	}
}

func (w *Worker) processNavigation(ctx context.Context, task catalog.Task) {
	jobID, err := w.tracker.Run(ctx, task.URL, catalog.TargetNavigation, func(ctx context.Context) (int, error) {
		result, err := w.scraper.ScrapeNavigation(ctx)
		if err != nil {
			return 0, err
		}
		written, err := w.store.UpsertCategories(ctx, result.Data)
		if err != nil {
			return 0, fmt.Errorf("persist categories: %w", err)
		}
		return written, nil
	})
	if err != nil {
		w.logger.Error("navigation job failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (w *Worker) processProduct(ctx context.Context, task catalog.Task) {
	jobID, err := w.tracker.Run(ctx, task.URL, catalog.TargetProduct, func(ctx context.Context) (int, error) {
		detail, err := w.scraper.ScrapeProductDetail(ctx, task.URL)
		if err != nil {
			return 0, err
		}
		sourceID := task.Slug
		if sourceID == "" {
			sourceID = scrape.SourceIDFromURL(task.URL)
		}
		if err := w.store.UpdateProductDetail(ctx, sourceID, detail); err != nil {
			return 0, fmt.Errorf("persist product detail: %w", err)
		}
		return 1, nil
	})
	if err != nil {
		w.logger.Error("product job failed",
			zap.String("job_id", jobID), zap.String("url", task.URL), zap.Error(err))
	}
}
