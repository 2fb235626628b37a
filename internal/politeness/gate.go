// Package politeness enforces robots.txt directives and request pacing
// against the target site.
package politeness

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pagesift/bookstore-scraper/internal/metrics"
)

// Config holds politeness knobs.
type Config struct {
	UserAgent         string
	RequestsPerMinute int
	DelayMin          time.Duration
	DelayMax          time.Duration
	RobotsTTL         time.Duration
}

type robotsEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

// Gate combines a per-host robots.txt cache with a global token bucket.
// All page loads must pass through Allowed and Throttle before hitting
// the network.
type Gate struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger

	mu     sync.Mutex
	robots map[string]robotsEntry

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGate creates a Gate. The token bucket holds RequestsPerMinute tokens
// and refills at RequestsPerMinute/60 per second, so a full-burst client
// still averages out to the configured per-minute rate.
func NewGate(cfg Config, logger *zap.Logger) *Gate {
	if cfg.RobotsTTL <= 0 {
		cfg.RobotsTTL = time.Hour
	}
	return &Gate{
		cfg: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute),
		logger:  logger,
		robots:  make(map[string]robotsEntry),
		sleep:   sleepCtx,
	}
}

// Allowed reports whether robots.txt permits fetching rawURL. Fetch or
// parse failures allow the request; an unreachable robots.txt must not
// stall the whole crawl.
func (g *Gate) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	data, err := g.load(ctx, parsed)
	if err != nil {
		g.logger.Warn("robots fetch failed; allowing access",
			zap.String("host", parsed.Host), zap.Error(err))
		return true
	}
	group := data.FindGroup(g.cfg.UserAgent)
	if group == nil {
		return true
	}
	return group.Test(parsed.Path)
}

// Throttle blocks until the token bucket admits one request, then sleeps
// a random delay in [DelayMin, DelayMax].
func (g *Gate) Throttle(ctx context.Context) error {
	start := time.Now()
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitWait(waited)
	}
	delay := randomDelay(g.cfg.DelayMin, g.cfg.DelayMax)
	if delay <= 0 {
		return nil
	}
	return g.sleep(ctx, delay)
}

func (g *Gate) load(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	hostKey := strings.ToLower(parsed.Host)

	g.mu.Lock()
	entry, ok := g.robots[hostKey]
	g.mu.Unlock()
	if ok && time.Since(entry.fetchedAt) < g.cfg.RobotsTTL {
		return entry.data, nil
	}

	// Fetch outside the lock. Concurrent refreshes of the same host are
	// harmless; the last writer wins.
	robotsURL := *parsed
	robotsURL.Path = path.Join("/", "robots.txt")
	robotsURL.RawQuery = ""
	robotsURL.Fragment = ""
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", g.cfg.UserAgent)
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			g.logger.Debug("failed to close robots response body", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}

	g.mu.Lock()
	g.robots[hostKey] = robotsEntry{data: data, fetchedAt: time.Now()}
	g.mu.Unlock()
	return data, nil
}

func randomDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := big.NewInt(int64(max - min))
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return min
	}
	return min + time.Duration(n.Int64())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
