package archive

import (
	"context"
	"sync"
)

// MemoryStore keeps snapshots in a map, for local runs and tests.
type MemoryStore struct {
	mu        sync.Mutex
	snapshots map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]string)}
}

// SaveSnapshot stores the HTML keyed by URL.
func (s *MemoryStore) SaveSnapshot(_ context.Context, rawURL, html string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[rawURL] = html
	return "mem://" + rawURL, nil
}

// Snapshot returns a stored snapshot, for tests.
func (s *MemoryStore) Snapshot(rawURL string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	html, ok := s.snapshots[rawURL]
	return html, ok
}
