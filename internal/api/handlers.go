package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/verifysource/newscrawler/internal/crawl"
	"github.com/verifysource/newscrawler/internal/maintenance"
)

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.jobs.Stats(r.Context(), maintenance.DefaultStuckAfter, s.clock.Now()); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "job store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.maint.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.sources.ListActive(r.Context())
	if err != nil {
		s.logger.Error("source listing failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources, "count": len(sources)})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// submitJobRequest is the body accepted by POST /v1/jobs.
type submitJobRequest struct {
	SourceID  string `json:"source_id"`
	URL       string `json:"url"`
	CrawlType string `json:"crawl_type,omitempty"`
	Priority  int    `json:"priority,omitempty"`
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SourceID == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, "source_id and url are required")
		return
	}
	normalized, err := crawl.NormalizeURL(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid url")
		return
	}

	crawlType := strings.ToLower(req.CrawlType)
	switch crawlType {
	case "":
		crawlType = crawl.CrawlTypeArticle
	case crawl.CrawlTypeArticle, crawl.CrawlTypeDiscover, crawl.CrawlTypeSource:
	default:
		writeError(w, http.StatusBadRequest, "unknown crawl_type")
		return
	}
	priority := req.Priority
	if priority <= 0 {
		priority = crawl.DefaultPriority
	}

	id, err := s.ids.NewID()
	if err != nil {
		s.logger.Error("id generation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	now := s.clock.Now()
	job, created, err := s.jobs.CreateJob(r.Context(), crawl.Job{
		ID:          id,
		SourceID:    req.SourceID,
		URL:         normalized,
		Status:      crawl.JobStatusPending,
		Priority:    priority,
		MaxRetries:  crawl.DefaultMaxRetries,
		Metadata:    map[string]string{crawl.MetaCrawlType: crawlType},
		CreatedAt:   now,
		ScheduledAt: now,
	})
	if err != nil {
		s.logger.Error("job creation failed", zap.Error(err), zap.String("url", normalized))
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	status := http.StatusCreated
	if !created {
		// An active job for this (source, url) pair already exists.
		status = http.StatusOK
	}
	writeJSON(w, status, job)
}
