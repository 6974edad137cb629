// Package metrics exposes the Prometheus collectors for ingestion jobs,
// circuit breaker state and rate limiter budget, plus the /metrics HTTP
// handler that serves them. Only the orchestrator reports into them (job
// and ticket counters); the breaker-state and limiter-remaining gauges
// change only when a caller sets them directly.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/r3e-collective/ticketflow/internal/domain"
	"github.com/r3e-collective/ticketflow/internal/resilience"
)

// Registry bundles every collector this service reports, registered
// against its own prometheus.Registry rather than the global default so
// tests can construct independent instances.
type Registry struct {
	reg *prometheus.Registry

	JobsTotal        *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec
	TicketsIngested  *prometheus.CounterVec
	BreakerState     *prometheus.GaugeVec
	LimiterRemaining prometheus.Gauge
}

// New constructs and registers every collector.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ticketflow",
			Subsystem: "orchestrator",
			Name:      "jobs_total",
			Help:      "Total ingestion jobs by tenant and terminal status.",
		}, []string{"tenant_id", "status"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ticketflow",
			Subsystem: "orchestrator",
			Name:      "job_duration_seconds",
			Help:      "Ingestion job wall-clock duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tenant_id"}),
		TicketsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ticketflow",
			Subsystem: "orchestrator",
			Name:      "tickets_ingested_total",
			Help:      "Tickets processed by ingestion, by tenant and sync action (created, updated, unchanged).",
		}, []string{"tenant_id", "action"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ticketflow",
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state: 0=closed, 1=half_open, 2=open.",
		}, []string{"name"}),
		LimiterRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ticketflow",
			Subsystem: "ratelimit",
			Name:      "remaining",
			Help:      "Remaining acquisitions in the current sliding window.",
		}),
	}

	reg.MustRegister(r.JobsTotal, r.JobDuration, r.TicketsIngested, r.BreakerState, r.LimiterRemaining)
	return r
}

// Handler returns the /metrics HTTP handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveJobCompletion satisfies orchestrator.Recorder: one jobs_total
// increment plus one duration observation per terminal job.
func (r *Registry) ObserveJobCompletion(tenantID string, status domain.JobStatus, duration time.Duration) {
	r.JobsTotal.WithLabelValues(tenantID, string(status)).Inc()
	r.JobDuration.WithLabelValues(tenantID).Observe(duration.Seconds())
}

// ObserveTicketAction satisfies orchestrator.Recorder: one increment per
// sync decision (created, updated, unchanged).
func (r *Registry) ObserveTicketAction(tenantID, action string) {
	r.TicketsIngested.WithLabelValues(tenantID, action).Inc()
}

// RecordBreakerState translates a breaker's State into the gauge value.
func (r *Registry) RecordBreakerState(name string, state resilience.State) {
	var v float64
	switch state {
	case resilience.StateHalfOpen:
		v = 1
	case resilience.StateOpen:
		v = 2
	default:
		v = 0
	}
	r.BreakerState.WithLabelValues(name).Set(v)
}
