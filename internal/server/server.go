// Package server exposes a running poller over HTTP and gRPC: cached event
// listings, an SSE feed, poller control, Prometheus metrics, and a health
// service that reflects the stale signal.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/alfredjeanlab/cmevents/internal/events"
	"github.com/alfredjeanlab/cmevents/internal/model"
	"github.com/alfredjeanlab/cmevents/internal/poller"
	"github.com/alfredjeanlab/cmevents/internal/store"
)

// ServiceName is the gRPC health service name that tracks the event feed.
const ServiceName = "cmevents.v1.Events"

// PollerControl is the part of *poller.Poller the server drives.
type PollerControl interface {
	State() poller.State
	ResetBackoff()
}

// SeenMarker marks events seen upstream. *client.APIClient implements it.
type SeenMarker interface {
	MarkEventSeen(ctx context.Context, id int64) error
}

// Config wires a Server to its collaborators. Store and Poller are
// required; the rest are optional.
type Config struct {
	Store    store.Store
	Poller   PollerControl
	Upstream SeenMarker

	// Registry backs GET /metrics and the HTTP request metrics. Nil
	// serves the default gatherer and skips request metrics.
	Registry *prometheus.Registry

	AuthToken string
	Logger    *slog.Logger
}

// Server serves the cached feed. It is an events.Listener: register Listen
// on the stream to fan events out to SSE clients.
type Server struct {
	store     store.Store
	poller    PollerControl
	upstream  SeenMarker
	registry  *prometheus.Registry
	authToken string
	logger    *slog.Logger

	sseHub  *sseHub
	health  *health.Server
	stale   atomic.Bool
	metrics *httpMetrics
}

// New returns a Server for cfg.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:     cfg.Store,
		poller:    cfg.Poller,
		upstream:  cfg.Upstream,
		registry:  cfg.Registry,
		authToken: cfg.AuthToken,
		logger:    logger,
		sseHub:    newSSEHub(),
		health:    health.NewServer(),
	}
	if cfg.Registry != nil {
		s.metrics = newHTTPMetrics(cfg.Registry)
	}
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Listen broadcasts one event to SSE clients on its bus topic.
func (s *Server) Listen(e model.Event) {
	s.broadcastEvent(model.Topic(e), e)
}

// SetStale records the poller's stale signal. It is meant as the poller's
// OnStaleChange callback: the health service flips to NOT_SERVING while
// stale, and a notice goes out to SSE clients on events.TopicStale.
func (s *Server) SetStale(st poller.State) {
	if s.stale.Swap(st.Stale) == st.Stale {
		return
	}
	status := healthpb.HealthCheckResponse_SERVING
	if st.Stale {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		s.logger.Warn("event feed is stale", "consecutive_failures", st.ConsecutiveFailures, "last_error", st.LastError)
	} else {
		s.logger.Info("event feed recovered")
	}
	s.health.SetServingStatus(ServiceName, status)
	s.broadcastEvent(events.TopicStale, events.StaleNotice{
		Stale:               st.Stale,
		ConsecutiveFailures: st.ConsecutiveFailures,
		LastError:           st.LastError,
	})
}

// Stale reports the last stale signal passed to SetStale.
func (s *Server) Stale() bool { return s.stale.Load() }

// Shutdown marks every health service NOT_SERVING.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

// broadcastEvent fans an event out to SSE clients.
func (s *Server) broadcastEvent(topic string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to marshal event for SSE broadcast", "topic", topic, "err", err)
		return
	}
	s.sseHub.broadcast(topic, payload)
}
