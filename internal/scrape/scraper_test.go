package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pagesift/bookstore-scraper/internal/catalog"
	"github.com/pagesift/bookstore-scraper/internal/metrics"
)

type fakeLoader struct {
	pages map[string]string
	fails map[string]error
	loads []string
}

func (f *fakeLoader) Load(_ context.Context, req LoadRequest) (*goquery.Document, error) {
	f.loads = append(f.loads, req.URL)
	if err, ok := f.fails[req.URL]; ok {
		return nil, err
	}
	html, ok := f.pages[req.URL]
	if !ok {
		return nil, fmt.Errorf("no fixture for %s", req.URL)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

type fakeGate struct {
	blocked map[string]bool
}

func (g *fakeGate) Allowed(_ context.Context, rawURL string) bool {
	return !g.blocked[rawURL]
}

func (g *fakeGate) Throttle(context.Context) error { return nil }

type fakeArchive struct {
	saved map[string]string
}

func (a *fakeArchive) SaveSnapshot(_ context.Context, rawURL, html string) (string, error) {
	if a.saved == nil {
		a.saved = map[string]string{}
	}
	a.saved[rawURL] = html
	return "ref/" + rawURL, nil
}

func listingPage(totalText string, titles ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><p>" + totalText + "</p>")
	for i, title := range titles {
		fmt.Fprintf(&b, `<article class="product_pod">
			<h3><a href="/catalogue/%s_%d/index.html">%s</a></h3>
			<p class="price_color">£10.00</p>
		</article>`, Slugify(title), i, title)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func newTestScraper(t *testing.T, loader PageLoader, gate Gate, opts ...Option) *Scraper {
	t.Helper()
	metrics.Init()
	cfg := Config{
		BaseURL:   "https://books.example.com",
		UserAgent: "test-agent",
		PageSize:  40,
		Retry:     RetryConfig{MaxAttempts: 1},
		Selectors: DefaultSelectors(),
	}
	s, err := NewScraper(cfg, loader, gate, zap.NewNop(), opts...)
	require.NoError(t, err)
	s.sleep = func(context.Context, time.Duration) error { return nil }
	return s
}

func TestScrapeCategoryWalksAllPagesAndBatches(t *testing.T) {
	t.Parallel()

	base := "https://books.example.com/catalogue/category/books/fiction_10/index.html"
	loader := &fakeLoader{pages: map[string]string{
		base:              listingPage("120 products", "Book One", "Book Two"),
		base + "?page=2":  listingPage("120 products", "Book Three"),
		base + "?page=3":  listingPage("120 products", "Book Four"),
	}}
	s := newTestScraper(t, loader, &fakeGate{})

	var batches []catalog.Progress
	var seen []string
	result, err := s.ScrapeCategory(context.Background(), base, 0, func(_ context.Context, products []catalog.Product, p catalog.Progress) error {
		batches = append(batches, p)
		for _, prod := range products {
			seen = append(seen, prod.Title)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, result.PagesScraped)
	require.Equal(t, 4, result.TotalItems)
	require.Empty(t, result.Errors)
	require.Equal(t, []string{"Book One", "Book Two", "Book Three", "Book Four"}, seen)

	require.Len(t, batches, 3)
	for i, p := range batches {
		require.Equal(t, i+1, p.CurrentPage)
		require.Equal(t, 3, p.TotalPages)
	}
}

func TestScrapeCategoryHonorsMaxPages(t *testing.T) {
	t.Parallel()

	base := "https://books.example.com/catalogue/category/books/fiction_10/index.html"
	loader := &fakeLoader{pages: map[string]string{
		base:             listingPage("200 products", "Book One"),
		base + "?page=2": listingPage("200 products", "Book Two"),
	}}
	s := newTestScraper(t, loader, &fakeGate{})

	result, err := s.ScrapeCategory(context.Background(), base, 2, func(context.Context, []catalog.Product, catalog.Progress) error {
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.PagesScraped)
	require.Len(t, loader.loads, 2, "pages past the cap must never be requested")
}

func TestScrapeCategoryRecordsFailedPageAndContinues(t *testing.T) {
	t.Parallel()

	base := "https://books.example.com/catalogue/category/books/travel_2/index.html"
	loader := &fakeLoader{
		pages: map[string]string{
			base:             listingPage("120 products", "Book One"),
			base + "?page=3": listingPage("120 products", "Book Three"),
		},
		fails: map[string]error{
			base + "?page=2": errors.New("connection reset"),
		},
	}
	s := newTestScraper(t, loader, &fakeGate{})

	result, err := s.ScrapeCategory(context.Background(), base, 0, func(context.Context, []catalog.Product, catalog.Progress) error {
		return nil
	})
	require.NoError(t, err, "one failed page must not fail the crawl")
	require.Equal(t, 2, result.PagesScraped)
	require.Equal(t, 2, result.TotalItems)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "page 2")
}

func TestScrapeCategoryRobotsBlockedPage(t *testing.T) {
	t.Parallel()

	base := "https://books.example.com/catalogue/category/books/poetry_23/index.html"
	loader := &fakeLoader{pages: map[string]string{
		base:             listingPage("80 products", "Book One"),
		base + "?page=2": listingPage("80 products", "Book Two"),
	}}
	gate := &fakeGate{blocked: map[string]bool{base + "?page=2": true}}
	s := newTestScraper(t, loader, gate)

	result, err := s.ScrapeCategory(context.Background(), base, 0, func(context.Context, []catalog.Product, catalog.Progress) error {
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.PagesScraped)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "robots.txt")
	require.NotContains(t, loader.loads, base+"?page=2")
}

func TestScrapeCategoryBatchErrorAborts(t *testing.T) {
	t.Parallel()

	base := "https://books.example.com/catalogue/category/books/art_25/index.html"
	loader := &fakeLoader{pages: map[string]string{
		base:             listingPage("120 products", "Book One"),
		base + "?page=2": listingPage("120 products", "Book Two"),
	}}
	s := newTestScraper(t, loader, &fakeGate{})

	sentinel := errors.New("db unavailable")
	_, err := s.ScrapeCategory(context.Background(), base, 0, func(context.Context, []catalog.Product, catalog.Progress) error {
		return sentinel
	})
	require.Error(t, err)
	require.ErrorIs(t, err, sentinel)
	require.Len(t, loader.loads, 1, "batch abort must stop before the next page")
}

func TestScrapeCategoryArchivesEmptyPages(t *testing.T) {
	t.Parallel()

	base := "https://books.example.com/catalogue/category/books/empty_99/index.html"
	loader := &fakeLoader{pages: map[string]string{
		base: `<html><body><p>nothing for sale</p></body></html>`,
	}}
	arch := &fakeArchive{}
	s := newTestScraper(t, loader, &fakeGate{}, WithArchive(arch))

	result, err := s.ScrapeCategory(context.Background(), base, 0, func(context.Context, []catalog.Product, catalog.Progress) error {
		t.Fatal("empty pages must not produce batches")
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.PagesScraped)
	require.Zero(t, result.TotalItems)
	require.Contains(t, arch.saved, base)
}

func TestScrapeNavigation(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{pages: map[string]string{
		"https://books.example.com": `<html><body>
			<div class="side_categories"><ul>
				<li><a href="/catalogue/category/books/fiction_10/index.html">Fiction</a></li>
				<li><a href="/catalogue/category/books/travel_2/index.html">Travel</a></li>
			</ul></div>
		</body></html>`,
	}}
	s := newTestScraper(t, loader, &fakeGate{})

	result, err := s.ScrapeNavigation(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Data.Categories, 2)
	require.Equal(t, 2, result.TotalItems)
}

func TestScrapeNavigationBlocked(t *testing.T) {
	t.Parallel()

	gate := &fakeGate{blocked: map[string]bool{"https://books.example.com": true}}
	s := newTestScraper(t, &fakeLoader{}, gate)

	_, err := s.ScrapeNavigation(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "robots.txt")
}

func TestWithPageParam(t *testing.T) {
	t.Parallel()

	base := "https://x.test/cat?sort=asc"
	require.Equal(t, base, withPageParam(base, 1))
	require.Equal(t, "https://x.test/cat?page=2&sort=asc", withPageParam(base, 2))
	require.Equal(t, "https://x.test/cat", withPageParam("https://x.test/cat", 0))
}
