// Package metrics exposes list-manager counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the counters recorded by the services.
type Metrics struct {
	registry *prometheus.Registry

	Mutations           *prometheus.CounterVec
	PersistenceFailures *prometheus.CounterVec
	CorruptedLoads      prometheus.Counter
	Suggestions         *prometheus.CounterVec
	Backups             *prometheus.CounterVec
}

// New registers every counter on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "listmanager",
			Name:      "mutations_total",
			Help:      "Applied list mutations by operation.",
		}, []string{"op"}),
		PersistenceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "listmanager",
			Name:      "persistence_failures_total",
			Help:      "Failed slot writes, split by quota exhaustion.",
		}, []string{"quota"}),
		CorruptedLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "listmanager",
			Name:      "corrupted_loads_total",
			Help:      "Persisted values that could not be decoded and were reset.",
		}),
		Suggestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "listmanager",
			Name:      "suggestions_total",
			Help:      "Suggestion requests by outcome.",
		}, []string{"outcome"}),
		Backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "listmanager",
			Name:      "backups_total",
			Help:      "Backup uploads by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		m.Mutations,
		m.PersistenceFailures,
		m.CorruptedLoads,
		m.Suggestions,
		m.Backups,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the registry the counters live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Mutation(op string) {
	if m != nil {
		m.Mutations.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) PersistenceFailure(quota bool) {
	if m == nil {
		return
	}
	label := "false"
	if quota {
		label = "true"
	}
	m.PersistenceFailures.WithLabelValues(label).Inc()
}

func (m *Metrics) CorruptedLoad() {
	if m != nil {
		m.CorruptedLoads.Inc()
	}
}

func (m *Metrics) Suggestion(outcome string) {
	if m != nil {
		m.Suggestions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Backup(outcome string) {
	if m != nil {
		m.Backups.WithLabelValues(outcome).Inc()
	}
}
