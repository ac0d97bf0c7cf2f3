package usersync

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for store synchronisation.
type Metrics struct {
	revalidations *prometheus.CounterVec
	hydrate       prometheus.Histogram
	dispatches    *prometheus.CounterVec
	saves         *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the sync metrics against registerer. A nil registerer
// uses the default Prometheus registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Revalidated records the outcome of one hydrate triggered by trigger.
// Outcome is one of "changed", "unchanged" or "discarded".
func (m *Metrics) Revalidated(trigger, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.revalidations.WithLabelValues(trigger, outcome).Inc()
	m.hydrate.Observe(time.Since(started).Seconds())
}

// Dispatched counts an applied reducer action.
func (m *Metrics) Dispatched(action ActionType) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(string(action)).Inc()
}

// Saved counts a persistence save; status is "saved" or "skipped".
func (m *Metrics) Saved(status string) {
	if m == nil {
		return
	}
	m.saves.WithLabelValues(status).Inc()
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	revalidations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gymflow_sync_revalidations_total",
		Help: "Revalidations partitioned by trigger and outcome.",
	}, []string{"trigger", "outcome"})
	hydrate := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gymflow_sync_hydrate_duration_seconds",
		Help:    "Duration in seconds of user list hydration.",
		Buckets: prometheus.DefBuckets,
	})
	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gymflow_sync_dispatch_total",
		Help: "Reducer actions applied to the store.",
	}, []string{"action"})
	saves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gymflow_sync_persist_total",
		Help: "Persistence saves partitioned by status.",
	}, []string{"status"})
	registerer.MustRegister(revalidations, hydrate, dispatches, saves)
	return &Metrics{revalidations: revalidations, hydrate: hydrate, dispatches: dispatches, saves: saves}
}
