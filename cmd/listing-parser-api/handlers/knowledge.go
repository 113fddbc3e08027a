package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/spherical-ai/spherical/libs/listing-parser/internal/knowledge"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/listing"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/observability"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/storage"
)

// KnowledgeHandler reports and reloads the knowledge base.
type KnowledgeHandler struct {
	logger  *observability.Logger
	service *listing.Service
}

// NewKnowledgeHandler creates a new knowledge handler.
func NewKnowledgeHandler(logger *observability.Logger, service *listing.Service) *KnowledgeHandler {
	return &KnowledgeHandler{logger: logger, service: service}
}

// Get handles GET /knowledge.
func (h *KnowledgeHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.KnowledgeInfo())
}

// Reload handles POST /knowledge/reload.
func (h *KnowledgeHandler) Reload(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.ReloadKnowledge(r.Context())
	switch {
	case errors.Is(err, knowledge.ErrNoSource):
		writeError(w, http.StatusConflict, "no_knowledge_source", "no knowledge source is configured", "")
	case err != nil:
		h.logger.WithContext(r.Context()).Warn().Err(err).Msg("Knowledge reload failed")
		writeError(w, http.StatusBadGateway, "reload_failed", "knowledge reload failed, previous snapshot kept", err.Error())
	default:
		writeJSON(w, http.StatusOK, info)
	}
}

// AnalysisLister reads the analysis audit log.
type AnalysisLister interface {
	ListRecent(ctx context.Context, limit int) ([]*storage.AnalysisRecord, error)
	CategoryCounts(ctx context.Context, since time.Time) ([]storage.CategoryCount, error)
}

// AnalysisHandler serves the analysis audit log.
type AnalysisHandler struct {
	logger *observability.Logger
	repo   AnalysisLister
	now    func() time.Time
}

// NewAnalysisHandler creates a new analysis handler. repo may be nil when
// persistence is disabled.
func NewAnalysisHandler(logger *observability.Logger, repo AnalysisLister) *AnalysisHandler {
	return &AnalysisHandler{logger: logger, repo: repo, now: time.Now}
}

// Recent handles GET /analyses/recent?limit=N.
func (h *AnalysisHandler) Recent(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusNotImplemented, "persistence_disabled", "analysis records are not stored", "")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be between 1 and 500", "")
			return
		}
		limit = n
	}

	records, err := h.repo.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("Failed to list analyses")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list analyses", err.Error())
		return
	}
	if records == nil {
		records = []*storage.AnalysisRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"analyses": records})
}

// Categories handles GET /analyses/categories?window=24h.
func (h *AnalysisHandler) Categories(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusNotImplemented, "persistence_disabled", "analysis records are not stored", "")
		return
	}

	window := 24 * time.Hour
	if v := r.URL.Query().Get("window"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "window must be a positive duration", "")
			return
		}
		window = d
	}

	counts, err := h.repo.CategoryCounts(r.Context(), h.now().Add(-window))
	if err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("Failed to count categories")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to count categories", err.Error())
		return
	}
	if counts == nil {
		counts = []storage.CategoryCount{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"window": window.String(), "categories": counts})
}
