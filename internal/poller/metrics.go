package poller

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch outcomes recorded on cmev_poller_fetches_total.
const (
	resultSuccess = "success"
	resultError   = "error"
	resultTimeout = "timeout"
)

// Metrics holds the poller's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	fetches         *prometheus.CounterVec
	fetchDuration   prometheus.Histogram
	eventsPublished prometheus.Counter
	overlapSkips    prometheus.Counter
	multiplier      prometheus.Gauge
	inProgress      prometheus.Gauge
	failures        prometheus.Gauge
	stale           prometheus.Gauge
}

// NewMetrics registers the poller collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cmev_poller_fetches_total",
			Help: "Event fetches by outcome",
		}, []string{"result"}),
		fetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cmev_poller_fetch_duration_seconds",
			Help:    "Time from issuing a fetch to its completion or timeout",
			Buckets: prometheus.DefBuckets,
		}),
		eventsPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "cmev_poller_events_published_total",
			Help: "Events emitted to the stream",
		}),
		overlapSkips: f.NewCounter(prometheus.CounterOpts{
			Name: "cmev_poller_overlap_skips_total",
			Help: "Due ticks skipped because a fetch was still in flight",
		}),
		multiplier: f.NewGauge(prometheus.GaugeOpts{
			Name: "cmev_poller_backoff_multiplier",
			Help: "Current backoff multiplier",
		}),
		inProgress: f.NewGauge(prometheus.GaugeOpts{
			Name: "cmev_poller_fetch_in_progress",
			Help: "1 while a fetch is in flight",
		}),
		failures: f.NewGauge(prometheus.GaugeOpts{
			Name: "cmev_poller_consecutive_failures",
			Help: "Fetch failures since the last success",
		}),
		stale: f.NewGauge(prometheus.GaugeOpts{
			Name: "cmev_poller_stale",
			Help: "1 while the event feed is considered stale",
		}),
	}
}

func (m *Metrics) observeState(s State) {
	if m == nil {
		return
	}
	m.multiplier.Set(float64(s.Multiplier))
	m.inProgress.Set(boolGauge(s.InProgress))
	m.failures.Set(float64(s.ConsecutiveFailures))
	m.stale.Set(boolGauge(s.Stale))
}

func (m *Metrics) observeFetch(result string, took time.Duration, published int) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(result).Inc()
	m.fetchDuration.Observe(took.Seconds())
	m.eventsPublished.Add(float64(published))
}

func (m *Metrics) observeOverlap() {
	if m == nil {
		return
	}
	m.overlapSkips.Inc()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
