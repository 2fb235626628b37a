// Package queue defines the interface for distributing scrape tasks.
// The abstraction keeps the workers independent of a specific broker
// (in-memory channel for local runs, GCP Pub/Sub in production).
package queue

import (
	"context"
	"errors"

	"github.com/pagesift/bookstore-scraper/internal/catalog"
)

// ErrClosed signals that the queue has shut down.
var ErrClosed = errors.New("queue closed")

// Queue carries scrape tasks from the API to the workers.
type Queue interface {
	// Enqueue submits a task, blocking until accepted or the context ends.
	Enqueue(ctx context.Context, task catalog.Task) error
	// Dequeue pops the next task, blocking until one arrives, the queue
	// closes (ErrClosed) or the context ends.
	Dequeue(ctx context.Context) (catalog.Task, error)
	// Close releases broker resources.
	Close() error
}
