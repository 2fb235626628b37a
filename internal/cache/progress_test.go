package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagesift/bookstore-scraper/internal/catalog"
)

func TestProgressCacheRoundTrip(t *testing.T) {
	t.Parallel()

	c := NewProgressCache(8, time.Minute)
	p := catalog.Progress{CurrentPage: 3, TotalPages: 10, UpdatedAt: time.Now()}
	c.Set(7, p)

	got, ok := c.Get(7)
	require.True(t, ok)
	require.Equal(t, 3, got.CurrentPage)
	require.Equal(t, 10, got.TotalPages)

	_, ok = c.Get(99)
	require.False(t, ok)
}

func TestProgressCacheDelete(t *testing.T) {
	t.Parallel()

	c := NewProgressCache(8, time.Minute)
	c.Set(7, catalog.Progress{CurrentPage: 1, TotalPages: 2})
	c.Delete(7)

	_, ok := c.Get(7)
	require.False(t, ok)
}

func TestProgressCacheExpires(t *testing.T) {
	t.Parallel()

	c := NewProgressCache(8, 30*time.Millisecond)
	c.Set(7, catalog.Progress{CurrentPage: 1, TotalPages: 2})

	require.Eventually(t, func() bool {
		_, ok := c.Get(7)
		return !ok
	}, time.Second, 10*time.Millisecond)
}
