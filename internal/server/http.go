package server

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alfredjeanlab/cmevents/internal/client"
)

const sseRoute = "GET /v1/events/stream"

// NewHTTPHandler returns an http.Handler with all routes registered.
// When the server has an auth token, requests (except GET /v1/health) must
// include a valid Authorization: Bearer <token> header.
func (s *Server) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/events", s.handleListEvents)
	mux.HandleFunc("POST /v1/events/{id}/seen", s.handleMarkSeen)
	mux.HandleFunc(sseRoute, s.handleEventStream)
	mux.HandleFunc("GET /v1/poller", s.handleGetPoller)
	mux.HandleFunc("POST /v1/poller/reset", s.handleResetPoller)
	mux.Handle("GET /metrics", s.metricsHandler())
	return RecoveryMiddleware(s.logger, AuthMiddleware(s.authToken, s.metrics.instrument(mux)))
}

func (s *Server) metricsHandler() http.Handler {
	if s.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// handleHealth handles GET /v1/health. It answers 200 even when the feed is
// stale; the body carries the signal.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	stale := s.poller.State().Stale
	status := "ok"
	if stale {
		status = "stale"
	}
	writeJSON(w, http.StatusOK, client.HealthResponse{Status: status, Stale: stale})
}

// handleGetPoller handles GET /v1/poller.
func (s *Server) handleGetPoller(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.poller.State())
}

// handleResetPoller handles POST /v1/poller/reset.
func (s *Server) handleResetPoller(w http.ResponseWriter, _ *http.Request) {
	s.poller.ResetBackoff()
	s.logger.Info("poller backoff reset")
	writeJSON(w, http.StatusOK, s.poller.State())
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error envelope with a single reason.
func writeError(w http.ResponseWriter, status int, reason string) {
	writeFieldError(w, status, "", reason)
}

// writeFieldError writes a JSON error envelope whose reason names the
// offending request field.
func writeFieldError(w http.ResponseWriter, status int, field, reason string) {
	writeJSON(w, status, client.ErrorEnvelope{
		Errors: []client.ErrorReason{{Reason: reason, Field: field}},
	})
}
