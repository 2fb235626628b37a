// Package catalog defines the domain types shared across the scraper subsystems.
package catalog

import (
	"time"
)

// TargetType identifies what kind of page a scrape job targets.
type TargetType string

// Target types persisted on job records and carried in queue tasks.
const (
	TargetNavigation TargetType = "NAVIGATION"
	TargetCategory   TargetType = "CATEGORY"
	TargetProduct    TargetType = "PRODUCT"
)

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

// Terminal reports whether the status is final. Terminal jobs accept no
// further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is the durable audit record for one top-level scrape invocation.
// It is created when the scrape starts and transitions to a terminal
// status exactly once.
type Job struct {
	ID         string     `json:"id"`
	TargetURL  string     `json:"target_url"`
	TargetType TargetType `json:"target_type"`
	Status     JobStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMs int64      `json:"duration_ms"`
	ItemsFound int        `json:"items_found"`
	ErrorLog   string     `json:"error_log,omitempty"`
}

// Product is a single listing extracted from a category page. SourceID is
// the natural key for downstream upserts; records without a SourceID or
// Title are dropped at extraction time.
type Product struct {
	SourceID      string  `json:"source_id"`
	Title         string  `json:"title"`
	Author        string  `json:"author,omitempty"`
	Price         float64 `json:"price"`
	OriginalPrice float64 `json:"original_price,omitempty"`
	ImageURL      string  `json:"image_url,omitempty"`
	SourceURL     string  `json:"source_url"`
	ISBN          string  `json:"isbn,omitempty"`
	Condition     string  `json:"condition,omitempty"`
	Publisher     string  `json:"publisher,omitempty"`
}

// Valid reports whether the product satisfies the minimum contract for
// persistence.
func (p Product) Valid() bool {
	return p.SourceID != "" && p.Title != ""
}

// Category is a navigation entry with optional child categories.
type Category struct {
	Title    string     `json:"title"`
	Slug     string     `json:"slug"`
	URL      string     `json:"url"`
	Children []Category `json:"children,omitempty"`
}

// Navigation is the full site menu produced by a navigation scrape.
type Navigation struct {
	Categories []Category `json:"categories"`
}

// ProductDetail holds the extra fields extracted from a product page.
// Any of the sections may be absent without the extraction failing.
type ProductDetail struct {
	Description string            `json:"description,omitempty"`
	Specs       map[string]string `json:"specs,omitempty"`
	ImageURL    string            `json:"image_url,omitempty"`
	Reviews     []string          `json:"reviews,omitempty"`
	Related     []string          `json:"related,omitempty"`
}

// Result wraps a scrape payload together with per-page bookkeeping.
// Partial failure is represented here rather than as a returned error:
// pages that exhausted their retries contribute an entry to Errors and
// nothing to Data.
type Result[T any] struct {
	Data         T
	PagesScraped int
	TotalItems   int
	Errors       []string
}

// Task is the queue message describing one scrape to run.
type Task struct {
	URL        string     `json:"url"`
	CategoryID int64      `json:"categoryId"`
	Slug       string     `json:"slug"`
	MaxPages   int        `json:"maxPages,omitempty"`
	TargetType TargetType `json:"targetType,omitempty"`
}

// Progress is the short-lived snapshot written after each persisted page.
type Progress struct {
	CurrentPage int       `json:"current"`
	TotalPages  int       `json:"total"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProgressStatus is the read contract served to pollers. Active is true
// iff a non-expired progress snapshot exists for the category.
type ProgressStatus struct {
	Active        bool `json:"active"`
	ProductsCount int  `json:"productsCount"`
	CurrentPage   int  `json:"currentPage,omitempty"`
	TotalPages    int  `json:"totalPages,omitempty"`
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
