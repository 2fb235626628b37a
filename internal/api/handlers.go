package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pagesift/bookstore-scraper/internal/catalog"
	"github.com/pagesift/bookstore-scraper/internal/storage"
)

type categoryScrapeRequest struct {
	URL        string `json:"url"`
	CategoryID int64  `json:"category_id"`
	Slug       string `json:"slug"`
	MaxPages   int    `json:"max_pages"`
}

type navigationScrapeRequest struct {
	URL string `json:"url"`
}

type productScrapeRequest struct {
	URL  string `json:"url"`
	Slug string `json:"slug"`
}

func (s *Server) submitCategoryScrape(w http.ResponseWriter, r *http.Request) {
	var req categoryScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validateURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.CategoryID <= 0 {
		writeError(w, http.StatusBadRequest, "category_id is required")
		return
	}
	task := catalog.Task{
		URL:        req.URL,
		CategoryID: req.CategoryID,
		Slug:       req.Slug,
		MaxPages:   req.MaxPages,
		TargetType: catalog.TargetCategory,
	}
	s.enqueue(w, r, task)
}

func (s *Server) submitNavigationScrape(w http.ResponseWriter, r *http.Request) {
	var req navigationScrapeRequest
	// An empty body means "scrape the configured catalog root".
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" {
		req.URL = s.cfg.BaseURL
	}
	if err := validateURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	task := catalog.Task{
		URL:        req.URL,
		TargetType: catalog.TargetNavigation,
	}
	s.enqueue(w, r, task)
}

func (s *Server) submitProductScrape(w http.ResponseWriter, r *http.Request) {
	var req productScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validateURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	task := catalog.Task{
		URL:        req.URL,
		Slug:       req.Slug,
		TargetType: catalog.TargetProduct,
	}
	s.enqueue(w, r, task)
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, task catalog.Task) {
	ctx, cancel := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancel()
	if err := s.queue.Enqueue(ctx, task); err != nil {
		s.logger.Error("enqueue failed",
			zap.String("target_type", string(task.TargetType)),
			zap.Error(err),
		)
		status := http.StatusServiceUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		writeError(w, status, "failed to enqueue scrape")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":      "queued",
		"target_type": string(task.TargetType),
		"url":         task.URL,
	})
}

// getCategoryProgress reports whether a crawl is active for the category
// and how far it has progressed. The product count always reflects the
// store, so pollers see counts grow while the crawl runs and keep the
// final total once the progress snapshot expires.
func (s *Server) getCategoryProgress(w http.ResponseWriter, r *http.Request) {
	categoryID, err := strconv.ParseInt(chi.URLParam(r, "category_id"), 10, 64)
	if err != nil || categoryID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid category_id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	count, err := s.catalog.CountProducts(ctx, categoryID)
	if err != nil {
		s.logger.Error("count products failed", zap.Int64("category_id", categoryID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load progress")
		return
	}
	status := catalog.ProgressStatus{ProductsCount: count}
	if p, ok := s.progress.Get(categoryID); ok {
		status.Active = true
		status.CurrentPage = p.CurrentPage
		status.TotalPages = p.TotalPages
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) getNavigationStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	count, err := s.catalog.CountCategories(ctx)
	if err != nil {
		s.logger.Error("count categories failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load navigation status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": count,
		"ready":      count > 0,
	})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("get job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("url must be absolute")
	}
	return nil
}
