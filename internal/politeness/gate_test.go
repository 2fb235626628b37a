package politeness

import (
	"context"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pagesift/bookstore-scraper/internal/metrics"
)

func newTestGate(t *testing.T, cfg Config) *Gate {
	t.Helper()
	metrics.Init()
	if cfg.UserAgent == "" {
		cfg.UserAgent = "test-agent"
	}
	if cfg.RequestsPerMinute == 0 {
		cfg.RequestsPerMinute = 600
	}
	g := NewGate(cfg, zap.NewNop())
	httpmock.ActivateNonDefault(g.client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return g
}

func TestAllowedRespectsDisallow(t *testing.T) {
	g := newTestGate(t, Config{})

	httpmock.RegisterResponder("GET", "https://shop.example.com/robots.txt",
		httpmock.NewStringResponder(200, "User-agent: *\nDisallow: /admin\nAllow: /admin/public\n"))

	ctx := context.Background()
	require.False(t, g.Allowed(ctx, "https://shop.example.com/admin/secret"))
	require.True(t, g.Allowed(ctx, "https://shop.example.com/admin/public"))
	require.True(t, g.Allowed(ctx, "https://shop.example.com/catalog"))
}

func TestAllowedFailsOpenOnFetchError(t *testing.T) {
	g := newTestGate(t, Config{})

	httpmock.RegisterResponder("GET", "https://down.example.com/robots.txt",
		httpmock.NewErrorResponder(context.DeadlineExceeded))

	require.True(t, g.Allowed(context.Background(), "https://down.example.com/catalog"))
}

func TestAllowedCachesPerHost(t *testing.T) {
	g := newTestGate(t, Config{RobotsTTL: time.Hour})

	httpmock.RegisterResponder("GET", "https://shop.example.com/robots.txt",
		httpmock.NewStringResponder(200, "User-agent: *\nDisallow:\n"))

	ctx := context.Background()
	require.True(t, g.Allowed(ctx, "https://shop.example.com/page/1"))
	require.True(t, g.Allowed(ctx, "https://shop.example.com/page/2"))
	require.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestAllowedRejectsUnparseableURL(t *testing.T) {
	g := newTestGate(t, Config{})
	require.False(t, g.Allowed(context.Background(), "http://%zz"))
}

func TestNewGateLimiterDerivation(t *testing.T) {
	t.Parallel()

	g := NewGate(Config{UserAgent: "a", RequestsPerMinute: 20}, zap.NewNop())
	require.Equal(t, rate.Limit(20.0/60.0), g.limiter.Limit())
	require.Equal(t, 20, g.limiter.Burst())
}

func TestThrottleSleepsWithinBounds(t *testing.T) {
	t.Parallel()
	metrics.Init()

	g := NewGate(Config{
		UserAgent:         "a",
		RequestsPerMinute: 6000,
		DelayMin:          10 * time.Millisecond,
		DelayMax:          20 * time.Millisecond,
	}, zap.NewNop())

	var slept time.Duration
	g.sleep = func(_ context.Context, d time.Duration) error {
		slept = d
		return nil
	}

	require.NoError(t, g.Throttle(context.Background()))
	require.GreaterOrEqual(t, slept, 10*time.Millisecond)
	require.Less(t, slept, 20*time.Millisecond)
}

func TestThrottleWaitsForRefillWhenDrained(t *testing.T) {
	t.Parallel()
	metrics.Init()

	// 120 rpm means a 120-token burst refilled at 2 tokens per second,
	// so a drained bucket admits the next request only after ~500ms.
	g := NewGate(Config{UserAgent: "a", RequestsPerMinute: 120}, zap.NewNop())
	require.True(t, g.limiter.AllowN(time.Now(), 120))

	start := time.Now()
	require.NoError(t, g.Throttle(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

func TestThrottleHonorsCancellation(t *testing.T) {
	t.Parallel()
	metrics.Init()

	// Drained bucket with a very slow refill forces Wait to block.
	g := NewGate(Config{UserAgent: "a", RequestsPerMinute: 1}, zap.NewNop())
	require.NoError(t, g.Throttle(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, g.Throttle(ctx))
}
