// Package metrics exposes Prometheus counters for result lookups and record changes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Lookup outcomes.
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// Metrics holds the application's collectors on a private registry.
type Metrics struct {
	registry  *prometheus.Registry
	lookups   *prometheus.CounterVec
	mutations *prometheus.CounterVec
	logins    *prometheus.CounterVec
}

// New registers all collectors, including Go runtime and process stats.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "results_lookups_total",
			Help: "Public result lookups by outcome.",
		}, []string{"outcome"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "results_student_mutations_total",
			Help: "Successful student record changes by operation.",
		}, []string{"op"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "results_admin_logins_total",
			Help: "Administrator login attempts by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.lookups,
		m.mutations,
		m.logins,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Lookup counts a public lookup.
func (m *Metrics) Lookup(outcome string) {
	m.lookups.WithLabelValues(outcome).Inc()
}

// Mutation counts a successful add, update or delete.
func (m *Metrics) Mutation(op string) {
	m.mutations.WithLabelValues(op).Inc()
}

// Login counts a login attempt.
func (m *Metrics) Login(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	m.logins.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
