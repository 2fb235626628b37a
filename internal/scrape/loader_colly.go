package scrape

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// CollyConfig controls the static HTTP loader.
type CollyConfig struct {
	UserAgent      string
	DefaultTimeout time.Duration
}

// CollyLoader fetches pages over plain HTTP. It is the default loader;
// the headless renderer is reserved for pages that need JavaScript.
type CollyLoader struct {
	cfg           CollyConfig
	baseCollector *colly.Collector
}

// NewCollyLoader builds a CollyLoader with a pooled transport.
func NewCollyLoader(cfg CollyConfig) *CollyLoader {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	// Robots enforcement lives in the politeness gate, ahead of any load.
	c.IgnoreRobotsTxt = true
	c.WithTransport(newHTTPTransport())
	return &CollyLoader{cfg: cfg, baseCollector: c}
}

// Load executes a single GET and parses the response body.
func (l *CollyLoader) Load(ctx context.Context, req LoadRequest) (*goquery.Document, error) {
	collector := l.baseCollector.Clone()
	if l.cfg.UserAgent != "" {
		collector.UserAgent = l.cfg.UserAgent
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = l.cfg.DefaultTimeout
	}
	collector.SetRequestTimeout(timeout)

	var (
		once     sync.Once
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		once.Do(func() {
			body = append([]byte(nil), r.Body...)
		})
	})
	collector.OnError(func(_ *colly.Response, err error) {
		once.Do(func() {
			fetchErr = err
		})
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(req.URL)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("visit %s: %w", req.URL, err)
		}
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, fetchErr)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
