// Package handlers provides HTTP handlers for the listing-parser API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/spherical-ai/spherical/libs/listing-parser/internal/listing"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/observability"
	"github.com/spherical-ai/spherical/libs/listing-parser/pkg/magicparse"
)

// ListingHandler handles listing analysis requests.
type ListingHandler struct {
	logger       *observability.Logger
	service      *listing.Service
	maxBodyBytes int64
	maxBatchSize int
}

// NewListingHandler creates a new listing handler.
func NewListingHandler(logger *observability.Logger, service *listing.Service, maxBodyBytes int64, maxBatchSize int) *ListingHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	if maxBatchSize <= 0 {
		maxBatchSize = 100
	}
	return &ListingHandler{
		logger:       logger,
		service:      service,
		maxBodyBytes: maxBodyBytes,
		maxBatchSize: maxBatchSize,
	}
}

// Analyze handles POST /listings/analyze.
func (h *ListingHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req magicparse.AnalyzeRequest
	if !decodeBody(w, r, h.maxBodyBytes, &req) {
		return
	}

	resp, err := h.service.Analyze(r.Context(), req)
	if err != nil {
		h.writeAnalyzeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// AnalyzeBatch handles POST /listings/analyze/batch.
func (h *ListingHandler) AnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	var req magicparse.BatchRequest
	if !decodeBody(w, r, h.maxBodyBytes, &req) {
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "items is required", "")
		return
	}
	if len(req.Items) > h.maxBatchSize {
		writeError(w, http.StatusRequestEntityTooLarge, "batch_too_large",
			fmt.Sprintf("at most %d items per batch", h.maxBatchSize), "")
		return
	}

	result, err := h.service.AnalyzeBatch(r.Context(), req.Items, nil)
	if err != nil {
		h.writeAnalyzeError(w, r, err)
		return
	}

	resp := magicparse.BatchResponse{Results: result.Responses}
	for _, itemErr := range result.Errors {
		resp.Errors = append(resp.Errors, magicparse.BatchItemError{Index: itemErr.Index, Error: itemErr.Err.Error()})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ListingHandler) writeAnalyzeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, listing.ErrEmptyRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), "")
	case errors.Is(err, r.Context().Err()) && r.Context().Err() != nil:
		writeError(w, http.StatusServiceUnavailable, "cancelled", "request cancelled", err.Error())
	default:
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("Listing analysis failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "analysis failed", err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large",
				fmt.Sprintf("request body exceeds %d bytes", limit), "")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body", err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message, detail string) {
	writeJSON(w, status, magicparse.APIError{Code: code, Message: message, Detail: detail})
}
