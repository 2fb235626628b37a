package scrape

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// ChromedpConfig controls the headless renderer.
type ChromedpConfig struct {
	MaxParallel int
	UserAgent   string
	// BlockedResources holds URL patterns (e.g. "*.png") that the browser
	// drops before requesting. Heavy assets never reach the wire.
	BlockedResources []string
	DefaultTimeout   time.Duration
}

// ChromedpLoader renders pages with headless Chrome. One browser process
// is shared across loads; each load gets its own tab.
type ChromedpLoader struct {
	cfg         ChromedpConfig
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedpLoader creates a headless loader backed by chromedp.
func NewChromedpLoader(cfg ChromedpConfig) (*ChromedpLoader, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &ChromedpLoader{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context, shutting the browser down.
func (l *ChromedpLoader) Close() {
	l.allocCancel()
}

// Load navigates to the requested URL and returns the rendered DOM.
func (l *ChromedpLoader) Load(ctx context.Context, req LoadRequest) (*goquery.Document, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	defer l.release()

	taskCtx, taskCancel := chromedp.NewContext(l.allocator)
	defer taskCancel()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = l.cfg.DefaultTimeout
	}
	taskCtx, cancel := context.WithTimeout(taskCtx, timeout)
	defer cancel()

	// Honor cancellation of the caller's context, not just the tab's.
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	html, err := l.runHeadless(taskCtx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("headless load canceled: %w", ctx.Err())
		}
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse rendered html: %w", err)
	}
	return doc, nil
}

func (l *ChromedpLoader) runHeadless(ctx context.Context, req LoadRequest) (string, error) {
	var html string
	wait := chromedp.WaitReady("body", chromedp.ByQuery)
	if req.WaitSelector != "" {
		wait = chromedp.WaitVisible(req.WaitSelector, chromedp.ByQuery)
	}
	actions := []chromedp.Action{
		l.networkSetupAction(),
		chromedp.Navigate(req.URL),
		wait,
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

func (l *ChromedpLoader) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if l.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(l.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(l.cfg.BlockedResources) > 0 {
			if err := network.SetBlockedURLs(l.cfg.BlockedResources).Do(ctx); err != nil {
				return fmt.Errorf("set blocked urls: %w", err)
			}
		}
		return nil
	})
}

func (l *ChromedpLoader) acquire(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	select {
	case l.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (l *ChromedpLoader) release() {
	if l.limiter == nil {
		return
	}
	select {
	case <-l.limiter:
	default:
	}
}
