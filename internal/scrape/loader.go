// Package scrape implements catalog page loading, extraction and the
// category crawl loop.
package scrape

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// LoadRequest describes a single page load.
type LoadRequest struct {
	URL string
	// WaitSelector, when set, delays the DOM snapshot until the selector
	// is visible. Only honored by renderers that execute JavaScript.
	WaitSelector string
	Timeout      time.Duration
}

// PageLoader renders a page and returns its parsed DOM.
type PageLoader interface {
	Load(ctx context.Context, req LoadRequest) (*goquery.Document, error)
}
