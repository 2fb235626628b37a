// Package main wires together the bookstore scraper service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pagesift/bookstore-scraper/internal/api"
	"github.com/pagesift/bookstore-scraper/internal/archive"
	"github.com/pagesift/bookstore-scraper/internal/cache"
	"github.com/pagesift/bookstore-scraper/internal/clock/system"
	"github.com/pagesift/bookstore-scraper/internal/config"
	iduuid "github.com/pagesift/bookstore-scraper/internal/id/uuid"
	"github.com/pagesift/bookstore-scraper/internal/logging"
	"github.com/pagesift/bookstore-scraper/internal/metrics"
	"github.com/pagesift/bookstore-scraper/internal/politeness"
	"github.com/pagesift/bookstore-scraper/internal/queue"
	queuemem "github.com/pagesift/bookstore-scraper/internal/queue/memory"
	queuepubsub "github.com/pagesift/bookstore-scraper/internal/queue/pubsub"
	"github.com/pagesift/bookstore-scraper/internal/scrape"
	"github.com/pagesift/bookstore-scraper/internal/storage"
	storemem "github.com/pagesift/bookstore-scraper/internal/storage/memory"
	"github.com/pagesift/bookstore-scraper/internal/storage/postgres"
	"github.com/pagesift/bookstore-scraper/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	jobStore, catalogStore, closeStores, err := buildStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	taskQueue, err := buildQueue(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := taskQueue.Close(); closeErr != nil {
			logger.Error("queue close failed", zap.Error(closeErr))
		}
	}()

	archiveStore, closeArchive, err := buildArchive(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeArchive()

	loader, closeLoader, err := buildLoader(cfg)
	if err != nil {
		return err
	}
	defer closeLoader()

	gate := politeness.NewGate(politeness.Config{
		UserAgent:         cfg.Scraper.UserAgent,
		RequestsPerMinute: cfg.Scraper.RequestsPerMinute,
		DelayMin:          time.Duration(cfg.Scraper.DelayMinMs) * time.Millisecond,
		DelayMax:          time.Duration(cfg.Scraper.DelayMaxMs) * time.Millisecond,
		RobotsTTL:         cfg.RobotsTTL(),
	}, logger.Named("politeness"))

	scraper, err := scrape.NewScraper(scrapeConfig(cfg), loader, gate,
		logger.Named("scraper"), scrape.WithArchive(archiveStore))
	if err != nil {
		return fmt.Errorf("build scraper: %w", err)
	}

	clock := system.New()
	progressCache := cache.NewProgressCache(cfg.Cache.Size, cfg.CacheTTL())
	tracker := worker.NewTracker(jobStore, iduuid.New(), clock, logger.Named("tracker"))
	persister := worker.NewPersister(catalogStore, progressCache, logger.Named("persister"))

	workerCfg := worker.Config{PersistFailurePolicy: cfg.Worker.PersistFailurePolicy}
	workers := make([]*worker.Worker, 0, cfg.Worker.Concurrency)
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		workers = append(workers, worker.New(
			taskQueue,
			scraper,
			tracker,
			persister,
			catalogStore,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	pool := worker.NewPool(workers)

	apiServer := api.NewServer(taskQueue, catalogStore, jobStore, progressCache, api.Config{
		BaseURL: cfg.Scraper.BaseURL,
	}, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("worker pool started", zap.Int("workers", len(workers)))
		pool.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

// buildStores selects Postgres when a DSN is configured and the in-memory
// stores otherwise.
func buildStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.JobStore, storage.CatalogStore, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Info("using in-memory stores")
		return storemem.NewJobStore(), storemem.NewCatalogStore(), func() {}, nil
	}
	pool, err := postgres.NewPool(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: int32(cfg.DB.MaxOpenConns),
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	jobStore, err := postgres.NewJobStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	catalogStore, err := postgres.NewCatalogStore(pool, logger.Named("catalog_store"))
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	return jobStore, catalogStore, pool.Close, nil
}

// buildQueue selects Pub/Sub when a project is configured and the bounded
// in-memory queue otherwise.
func buildQueue(ctx context.Context, cfg config.Config, logger *zap.Logger) (queue.Queue, error) {
	if cfg.PubSub.ProjectID == "" {
		logger.Info("using in-memory queue", zap.Int("depth", cfg.Worker.QueueDepth))
		return queuemem.NewQueue(cfg.Worker.QueueDepth), nil
	}
	q, err := queuepubsub.New(ctx, queuepubsub.Config{
		ProjectID:    cfg.PubSub.ProjectID,
		TopicID:      cfg.PubSub.TopicName,
		Subscription: cfg.PubSub.Subscription,
	}, logger.Named("pubsub"))
	if err != nil {
		return nil, fmt.Errorf("connect pubsub: %w", err)
	}
	return q, nil
}

// buildArchive selects GCS when a bucket is configured and the in-memory
// archive otherwise.
func buildArchive(ctx context.Context, cfg config.Config, logger *zap.Logger) (archive.Store, func(), error) {
	if cfg.Archive.GCSBucket == "" {
		logger.Info("using in-memory archive")
		return archive.NewMemoryStore(), func() {}, nil
	}
	store, err := archive.NewGCSStore(ctx, cfg.Archive.GCSBucket, cfg.Archive.Prefix, logger.Named("archive"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect gcs: %w", err)
	}
	closer := func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("archive close failed", zap.Error(closeErr))
		}
	}
	return store, closer, nil
}

// buildLoader picks headless Chrome when enabled, plain HTTP otherwise.
func buildLoader(cfg config.Config) (scrape.PageLoader, func(), error) {
	if cfg.Headless.Enabled {
		loader, err := scrape.NewChromedpLoader(scrape.ChromedpConfig{
			MaxParallel:      cfg.Headless.MaxParallel,
			UserAgent:        cfg.Scraper.UserAgent,
			BlockedResources: cfg.Headless.BlockedResources,
			DefaultTimeout:   time.Duration(cfg.Scraper.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("start headless browser: %w", err)
		}
		return loader, loader.Close, nil
	}
	loader := scrape.NewCollyLoader(scrape.CollyConfig{
		UserAgent:      cfg.Scraper.UserAgent,
		DefaultTimeout: time.Duration(cfg.Scraper.PageTimeoutSec) * time.Second,
	})
	return loader, func() {}, nil
}

func scrapeConfig(cfg config.Config) scrape.Config {
	return scrape.Config{
		BaseURL:       cfg.Scraper.BaseURL,
		UserAgent:     cfg.Scraper.UserAgent,
		MaxPages:      cfg.Scraper.MaxPages,
		PageSize:      cfg.Scraper.PageSize,
		WaitSelector:  cfg.Scraper.WaitSelector,
		DelayMin:      time.Duration(cfg.Scraper.DelayMinMs) * time.Millisecond,
		DelayMax:      time.Duration(cfg.Scraper.DelayMaxMs) * time.Millisecond,
		NavTimeout:    time.Duration(cfg.Scraper.NavTimeoutSec) * time.Second,
		PageTimeout:   time.Duration(cfg.Scraper.PageTimeoutSec) * time.Second,
		DetailTimeout: time.Duration(cfg.Scraper.DetailTimeoutSec) * time.Second,
		Retry: scrape.RetryConfig{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Retry.BackoffInitialMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.Retry.BackoffMaxMs) * time.Millisecond,
			Jitter:      cfg.Retry.Jitter,
		},
		Selectors: scrape.DefaultSelectors().Merge(configuredSelectors(cfg.Scraper.Selectors)),
	}
}

func configuredSelectors(sel config.SelectorsConfig) scrape.Selectors {
	return scrape.Selectors{
		ProductCard:          sel.ProductCard,
		ProductTitle:         sel.ProductTitle,
		ProductAuthor:        sel.ProductAuthor,
		ProductPrice:         sel.ProductPrice,
		ProductOriginalPrice: sel.ProductOriginalPrice,
		ProductImage:         sel.ProductImage,
		ProductLink:          sel.ProductLink,
		LazyImageAttrs:       sel.LazyImageAttrs,
		NavigationItem:       sel.NavigationItem,
		NavigationChildren:   sel.NavigationChildren,
		DetailDescription:    sel.DetailDescription,
		DetailSpecRows:       sel.DetailSpecRows,
		DetailImage:          sel.DetailImage,
		DetailReviews:        sel.DetailReviews,
		DetailRelated:        sel.DetailRelated,
		Pagination:           sel.Pagination,
	}
}
