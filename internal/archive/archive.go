// Package archive stores raw HTML snapshots of pages that need human
// inspection, such as pages that loaded but yielded no products.
package archive

import "context"

// Store persists page snapshots.
type Store interface {
	// SaveSnapshot writes the HTML of a page and returns a stable
	// reference to the stored object.
	SaveSnapshot(ctx context.Context, rawURL, html string) (string, error)
}
