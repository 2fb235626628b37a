package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCollyLoaderLoadsAndParses(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "loader-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><h1 class="title">Catalog</h1></body></html>`))
	}))
	defer srv.Close()

	l := NewCollyLoader(CollyConfig{UserAgent: "loader-agent"})
	doc, err := l.Load(context.Background(), LoadRequest{URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, "Catalog", doc.Find(".title").Text())
}

func TestCollyLoaderReportsHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	l := NewCollyLoader(CollyConfig{UserAgent: "loader-agent"})
	_, err := l.Load(context.Background(), LoadRequest{URL: srv.URL})
	require.Error(t, err)
}

func TestCollyLoaderHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-blocked
	}))
	defer srv.Close()
	defer close(blocked)

	l := NewCollyLoader(CollyConfig{UserAgent: "loader-agent", DefaultTimeout: 5 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := l.Load(ctx, LoadRequest{URL: srv.URL})
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
