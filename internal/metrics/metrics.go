// Package metrics exposes Prometheus collectors for the scraper service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scraperPagesTotal          *prometheus.CounterVec
	scraperRetriesTotal        prometheus.Counter
	scraperJobsTotal           *prometheus.CounterVec
	batchPersistFailuresTotal  prometheus.Counter
	rateLimitWaitSeconds       prometheus.Histogram
	scraperActiveWorkers       prometheus.Gauge
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scraperPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_pages_total",
				Help: "Total number of catalog pages processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		scraperRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_retries_total",
				Help: "Total number of retried page load attempts.",
			},
		)

		scraperJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_jobs_total",
				Help: "Total number of jobs completed, labeled by terminal status.",
			},
			[]string{"status"},
		)

		batchPersistFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_batch_persist_failures_total",
				Help: "Total number of product batches that failed to persist.",
			},
		)

		rateLimitWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scraper_rate_limit_wait_seconds",
				Help:    "Histogram of rate limiter wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		scraperActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage increments the page counter for the given outcome.
// Outcomes are "ok", "failed" and "blocked".
func ObservePage(outcome string) {
	scraperPagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRetry increments the retry counter.
func ObserveRetry() {
	scraperRetriesTotal.Inc()
}

// ObserveJob increments the job counter for the given terminal status.
func ObserveJob(status string) {
	scraperJobsTotal.WithLabelValues(status).Inc()
}

// ObserveBatchPersistFailure increments the persist failure counter.
func ObserveBatchPersistFailure() {
	batchPersistFailuresTotal.Inc()
}

// ObserveRateLimitWait records the duration spent waiting on the limiter.
func ObserveRateLimitWait(d time.Duration) {
	rateLimitWaitSeconds.Observe(d.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	scraperActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	scraperActiveWorkers.Dec()
}

// ObserveHTTPRequest records an API request latency observation.
func ObserveHTTPRequest(method, route string, duration time.Duration) {
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
