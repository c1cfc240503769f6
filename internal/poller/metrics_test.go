package poller

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func family(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %s not registered", name)
	return nil
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	return family(t, reg, name).GetMetric()[0].GetCounter().GetValue()
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	return family(t, reg, name).GetMetric()[0].GetGauge().GetValue()
}

func labeledCounter(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	for _, m := range family(t, reg, name).GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == value {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.observeState(State{Multiplier: 4, Stale: true})
	m.observeFetch(resultSuccess, 0, 3)
	m.observeOverlap()
}

func TestNewMetrics_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.observeState(State{Multiplier: 2, InProgress: true, ConsecutiveFailures: 1})

	if got := gaugeValue(t, reg, "cmev_poller_backoff_multiplier"); got != 2 {
		t.Errorf("multiplier = %v, want 2", got)
	}
	if got := gaugeValue(t, reg, "cmev_poller_fetch_in_progress"); got != 1 {
		t.Errorf("in progress = %v, want 1", got)
	}
	if got := gaugeValue(t, reg, "cmev_poller_consecutive_failures"); got != 1 {
		t.Errorf("failures = %v, want 1", got)
	}
}
