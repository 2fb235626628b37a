package scrape

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/pagesift/bookstore-scraper/internal/metrics"
)

// RetryConfig controls jittered exponential backoff for page loads.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the fraction of the computed delay that may be added or
	// subtracted, in [0,1].
	Jitter float64
}

// DefaultRetryConfig returns sane retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    8 * time.Second,
		Jitter:      0.2,
	}
}

// WithRetry runs op up to cfg.MaxAttempts times. The first attempt runs
// immediately; attempt k waits base*2^(k-2) capped at MaxDelay, with
// uniform jitter applied. Context cancellation aborts remaining attempts.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, logger *zap.Logger, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := backoffDelay(cfg, attempt)
			logger.Debug("retrying after backoff",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			metrics.ObserveRetry()
			if err := sleepCtx(ctx, delay); err != nil {
				return zero, err
			}
		}
		attempts = attempt

		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
	}
	return zero, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

// backoffDelay computes the wait before the given attempt (attempt >= 2).
func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt-2))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	d := time.Duration(delay)
	limit := time.Duration(cfg.Jitter * delay)
	if limit <= 0 {
		return d
	}
	jittered := d + randomJitter(2*limit) - limit
	if jittered < 0 {
		return 0
	}
	return jittered
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// randomDelay picks a uniform duration in [min, max] for inter-page waits.
func randomDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + randomJitter(max-min)
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
