package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/twinsync-io/twinsync/internal/journal"
)

// healthCheckTimeout bounds each component probe in the status handler.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/reconciliations", s.handleListReconciliations)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleStatus reports process info and per-component health.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string, len(s.components))
	for name, checker := range s.components {
		if checker == nil {
			continue
		}
		probe, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		if err := checker.HealthCheck(probe); err != nil {
			components[name] = err.Error()
		} else {
			components[name] = "ok"
		}
		cancel()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"application": s.application,
		"version":     s.version,
		"uptime_s":    int(time.Since(s.started).Seconds()),
		"components":  components,
	})
}

// handleListReconciliations serves the reconcile journal with optional
// device, trigger, outcome and pagination filters.
func (s *Server) handleListReconciliations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := journal.Filter{
		Device:  query.Get("device"),
		Trigger: query.Get("trigger"),
		Outcome: query.Get("outcome"),
	}

	var err error
	if filter.Limit, err = intParam(query.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	if filter.Offset, err = intParam(query.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be an integer")
		return
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing reconciliations failed", "error", err)
		writeInternalError(w, "listing reconciliations failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// intParam parses an optional integer query parameter; empty means 0.
func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
