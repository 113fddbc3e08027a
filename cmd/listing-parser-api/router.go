// Package main provides the API router setup.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical-ai/spherical/libs/listing-parser/cmd/listing-parser-api/handlers"
	"github.com/spherical-ai/spherical/libs/listing-parser/cmd/listing-parser-api/middleware"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/config"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/listing"
	"github.com/spherical-ai/spherical/libs/listing-parser/internal/observability"
	"github.com/spherical-ai/spherical/libs/listing-parser/pkg/magicparse"
)

// Deps holds everything the router serves.
type Deps struct {
	Service  *listing.Service
	Analyses handlers.AnalysisLister
	// Health reports backing-store state; nil means always healthy.
	Health func(ctx context.Context) magicparse.HealthResponse

	Auth           middleware.AuthConfig
	CORSOrigins    []string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	MaxBatchSize   int
}

// DepsFromRuntime wires the router to a built runtime.
func DepsFromRuntime(rt *listing.Runtime) Deps {
	cfg := rt.Config
	deps := Deps{
		Service:        rt.Service,
		Health:         rt.Health,
		Auth:           authConfig(cfg.Auth),
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: cfg.Server.WriteTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		MaxBatchSize:   cfg.Server.MaxBatchSize,
	}
	// Avoid a typed-nil interface when persistence is off.
	if rt.Analyses != nil {
		deps.Analyses = rt.Analyses
	}
	return deps
}

func authConfig(cfg config.AuthConfig) middleware.AuthConfig {
	return middleware.AuthConfig{
		Enabled:   cfg.Enabled,
		APIKeys:   cfg.APIKeys,
		AdminKeys: cfg.AdminKeys,
	}
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, deps Deps) http.Handler {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 30 * time.Second
	}
	if len(deps.CORSOrigins) == 0 {
		deps.CORSOrigins = []string{"*"}
	}
	health := deps.Health
	if health == nil {
		health = func(context.Context) magicparse.HealthResponse {
			return magicparse.HealthResponse{Status: "healthy"}
		}
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(deps.CORSOrigins))
	r.Use(chimiddleware.Timeout(deps.RequestTimeout))

	// Health check (unauthenticated)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, http.StatusOK, health(r.Context()))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		h := health(r.Context())
		status := http.StatusOK
		if h.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeHealth(w, status, h)
	})

	listingHandler := handlers.NewListingHandler(logger, deps.Service, deps.MaxBodyBytes, deps.MaxBatchSize)
	knowledgeHandler := handlers.NewKnowledgeHandler(logger, deps.Service)
	analysisHandler := handlers.NewAnalysisHandler(logger, deps.Analyses)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(deps.Auth))

		r.Route("/listings", func(r chi.Router) {
			r.Post("/analyze", listingHandler.Analyze)
			r.Post("/analyze/batch", listingHandler.AnalyzeBatch)
		})

		r.Route("/knowledge", func(r chi.Router) {
			r.Get("/", knowledgeHandler.Get)
			r.With(middleware.RequireRoles(middleware.RoleAdmin)).Post("/reload", knowledgeHandler.Reload)
		})

		r.Route("/analyses", func(r chi.Router) {
			r.Use(middleware.RequireRoles(middleware.RoleAdmin))
			r.Get("/recent", analysisHandler.Recent)
			r.Get("/categories", analysisHandler.Categories)
		})
	})

	return r
}

func writeHealth(w http.ResponseWriter, status int, h magicparse.HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(h)
}
