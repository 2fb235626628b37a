// Package cache holds short-lived crawl progress snapshots.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pagesift/bookstore-scraper/internal/catalog"
)

// ProgressCache keeps per-category crawl progress with a TTL. Stale
// entries expire on their own, so a crashed crawl never reports progress
// forever.
type ProgressCache struct {
	lru *expirable.LRU[int64, catalog.Progress]
}

// NewProgressCache builds a cache holding at most size entries, each
// living for ttl.
func NewProgressCache(size int, ttl time.Duration) *ProgressCache {
	if size <= 0 {
		size = 1024
	}
	return &ProgressCache{
		lru: expirable.NewLRU[int64, catalog.Progress](size, nil, ttl),
	}
}

// Set stores the latest progress snapshot for a category.
func (c *ProgressCache) Set(categoryID int64, p catalog.Progress) {
	c.lru.Add(categoryID, p)
}

// Get returns the progress of a category, if still fresh.
func (c *ProgressCache) Get(categoryID int64) (catalog.Progress, bool) {
	return c.lru.Get(categoryID)
}

// Delete drops a category's progress, marking the crawl inactive.
func (c *ProgressCache) Delete(categoryID int64) {
	c.lru.Remove(categoryID)
}
