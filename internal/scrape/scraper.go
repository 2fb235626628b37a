package scrape

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/pagesift/bookstore-scraper/internal/catalog"
	"github.com/pagesift/bookstore-scraper/internal/metrics"
)

// Gate admits page loads. Implemented by politeness.Gate.
type Gate interface {
	Allowed(ctx context.Context, rawURL string) bool
	Throttle(ctx context.Context) error
}

// Archive stores raw page snapshots for later inspection.
type Archive interface {
	SaveSnapshot(ctx context.Context, rawURL, html string) (string, error)
}

// BatchFunc receives each page's products as soon as they are extracted,
// together with the crawl position. Returning an error aborts the crawl.
type BatchFunc func(ctx context.Context, products []catalog.Product, progress catalog.Progress) error

// Scraper drives the category crawl loop. Pages are visited sequentially;
// a failed page is recorded in the result and the crawl moves on.
type Scraper struct {
	cfg       Config
	loader    PageLoader
	gate      Gate
	extractor *Extractor
	archive   Archive
	clock     catalog.Clock
	logger    *zap.Logger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option customizes a Scraper.
type Option func(*Scraper)

// WithArchive stores a snapshot of any page that loads but yields zero
// products, and of nothing else.
func WithArchive(a Archive) Option {
	return func(s *Scraper) { s.archive = a }
}

// WithClock overrides the time source.
func WithClock(c catalog.Clock) Option {
	return func(s *Scraper) { s.clock = c }
}

// NewScraper builds a Scraper.
func NewScraper(cfg Config, loader PageLoader, gate Gate, logger *zap.Logger, opts ...Option) (*Scraper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	extractor, err := NewExtractor(cfg.Selectors, cfg.BaseURL, logger)
	if err != nil {
		return nil, err
	}
	s := &Scraper{
		cfg:       cfg,
		loader:    loader,
		gate:      gate,
		extractor: extractor,
		clock:     systemClock{},
		logger:    logger,
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ScrapeCategory walks every page of a category listing, invoking onBatch
// once per non-empty page. maxPages of 0 means no cap. The returned result
// carries whatever was extracted even when individual pages failed; the
// error is non-nil only when the crawl as a whole could not proceed.
func (s *Scraper) ScrapeCategory(ctx context.Context, targetURL string, maxPages int, onBatch BatchFunc) (catalog.Result[[]catalog.Product], error) {
	result := catalog.Result[[]catalog.Product]{}
	if maxPages <= 0 {
		maxPages = s.cfg.MaxPages
	}

	// Until the first page renders there is nothing to estimate from.
	total := 1
	estimated := false

	for page := 1; page <= total; page++ {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("crawl canceled at page %d: %w", page, err)
		}

		pageURL := withPageParam(targetURL, page)
		if !s.gate.Allowed(ctx, pageURL) {
			s.logger.Warn("page disallowed by robots.txt", zap.String("url", pageURL))
			result.Errors = append(result.Errors, fmt.Sprintf("page %d: disallowed by robots.txt", page))
			metrics.ObservePage("blocked")
			continue
		}

		doc, err := s.loadPage(ctx, pageURL)
		if err != nil {
			s.logger.Warn("page load failed",
				zap.String("url", pageURL), zap.Int("page", page), zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("page %d: %v", page, err))
			metrics.ObservePage("failed")
			continue
		}

		if !estimated {
			detected := EstimatePages(doc, s.cfg.Selectors.Pagination, s.cfg.PageSize)
			total = capPages(detected, maxPages)
			estimated = true
			s.logger.Info("estimated category size",
				zap.String("url", targetURL), zap.Int("pages", total))
		}

		products := s.extractor.Products(doc)
		result.PagesScraped++
		metrics.ObservePage("ok")

		if len(products) == 0 {
			s.logger.Warn("page yielded no products", zap.String("url", pageURL))
			s.snapshot(ctx, pageURL, doc)
		} else {
			result.Data = append(result.Data, products...)
			result.TotalItems += len(products)
			progress := catalog.Progress{
				CurrentPage: page,
				TotalPages:  total,
				UpdatedAt:   s.clock.Now(),
			}
			if err := onBatch(ctx, products, progress); err != nil {
				return result, fmt.Errorf("page %d batch: %w", page, err)
			}
		}

		if page < total {
			if err := s.sleep(ctx, randomDelay(s.cfg.DelayMin, s.cfg.DelayMax)); err != nil {
				return result, fmt.Errorf("crawl canceled between pages: %w", err)
			}
		}
	}

	return result, nil
}

// ScrapeNavigation loads the storefront and extracts the category tree.
func (s *Scraper) ScrapeNavigation(ctx context.Context) (catalog.Result[catalog.Navigation], error) {
	result := catalog.Result[catalog.Navigation]{}
	if !s.gate.Allowed(ctx, s.cfg.BaseURL) {
		return result, fmt.Errorf("navigation disallowed by robots.txt")
	}
	doc, err := s.load(ctx, s.cfg.BaseURL, s.cfg.NavTimeout)
	if err != nil {
		return result, fmt.Errorf("load navigation: %w", err)
	}
	result.Data = s.extractor.Navigation(doc)
	result.PagesScraped = 1
	result.TotalItems = len(result.Data.Categories)
	return result, nil
}

// ScrapeProductDetail loads a single product page.
func (s *Scraper) ScrapeProductDetail(ctx context.Context, rawURL string) (catalog.ProductDetail, error) {
	if !s.gate.Allowed(ctx, rawURL) {
		return catalog.ProductDetail{}, fmt.Errorf("product page disallowed by robots.txt")
	}
	doc, err := s.load(ctx, rawURL, s.cfg.DetailTimeout)
	if err != nil {
		return catalog.ProductDetail{}, fmt.Errorf("load product page: %w", err)
	}
	return s.extractor.Detail(doc), nil
}

func (s *Scraper) loadPage(ctx context.Context, pageURL string) (*goquery.Document, error) {
	return s.load(ctx, pageURL, s.cfg.PageTimeout)
}

func (s *Scraper) load(ctx context.Context, rawURL string, timeout time.Duration) (*goquery.Document, error) {
	return WithRetry(ctx, s.cfg.Retry, s.logger, func(ctx context.Context) (*goquery.Document, error) {
		if err := s.gate.Throttle(ctx); err != nil {
			return nil, err
		}
		return s.loader.Load(ctx, LoadRequest{
			URL:          rawURL,
			WaitSelector: s.cfg.WaitSelector,
			Timeout:      timeout,
		})
	})
}

func (s *Scraper) snapshot(ctx context.Context, pageURL string, doc *goquery.Document) {
	if s.archive == nil {
		return
	}
	html, err := doc.Html()
	if err != nil {
		s.logger.Warn("render snapshot html failed", zap.Error(err))
		return
	}
	ref, err := s.archive.SaveSnapshot(ctx, pageURL, html)
	if err != nil {
		s.logger.Warn("archive snapshot failed", zap.String("url", pageURL), zap.Error(err))
		return
	}
	s.logger.Info("archived page snapshot", zap.String("url", pageURL), zap.String("ref", ref))
}

// withPageParam returns the URL for the given page. Page 1 is the raw
// category URL so the entry page never gains a redundant parameter.
func withPageParam(rawURL string, page int) string {
	if page <= 1 {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

func capPages(detected, maxPages int) int {
	if detected < 1 {
		detected = 1
	}
	if maxPages > 0 && detected > maxPages {
		return maxPages
	}
	return detected
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
