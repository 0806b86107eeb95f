// Package api serves the health, readiness and status endpoints of the sync scheduler.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/toolhive-sync-scheduler/internal/health"
	"github.com/stacklok/toolhive-sync-scheduler/internal/status"
	"github.com/stacklok/toolhive-sync-scheduler/internal/versions"
)

// ServerOption configures the API server
type ServerOption func(*serverConfig)

type serverConfig struct {
	middlewares    []func(http.Handler) http.Handler
	metricsHandler http.Handler
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithMetricsHandler mounts a prometheus scrape handler on /metrics
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.metricsHandler = h
	}
}

// NewServer creates the router serving the health signal and the sync status record
func NewServer(signal *health.Signal, store status.Store, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(signal))
	r.Get("/status", statusHandler(signal, store))
	r.Get("/version", versionHandler)
	if cfg.metricsHandler != nil {
		r.Handle("/metrics", cfg.metricsHandler)
	}

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// healthHandler reports liveness. The process is alive whenever it answers.
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, HealthResponse{Status: "healthy"}, http.StatusOK)
}

// readinessHandler fails while the last sync attempt was unsuccessful
func readinessHandler(signal *health.Signal) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		state := signal.Get()
		if state != health.Healthy {
			writeJSONResponse(w, ReadinessResponse{Status: "not ready", Health: state.String()},
				http.StatusServiceUnavailable)
			return
		}
		writeJSONResponse(w, ReadinessResponse{Status: "ready", Health: state.String()}, http.StatusOK)
	}
}

func statusHandler(signal *health.Signal, store status.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record, err := store.GetStatus(r.Context())
		if err != nil {
			slog.Error("Failed to read sync status", "error", err)
			writeJSONResponse(w, ErrorResponse{Error: "failed to read sync status"}, http.StatusInternalServerError)
			return
		}
		if record == nil {
			record = status.NotRunningStatus()
		}

		writeJSONResponse(w, StatusResponse{
			SyncStatus:   string(record.Status),
			NextSyncTime: record.NextSyncTime,
			Health:       signal.Get().String(),
		}, http.StatusOK)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}

func writeJSONResponse(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
