// Package metrics holds the gateway's Prometheus instruments. A fresh
// registry can be injected per test; production wires the default one.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	LoginsTotal        prometheus.Counter
	AuthFailuresTotal  *prometheus.CounterVec
	SessionsEvicted    prometheus.Counter
	SessionsSwept      prometheus.Counter
	ProxyRequestsTotal *prometheus.CounterVec
	ProxyDuration      *prometheus.HistogramVec
	BreakerTransitions *prometheus.CounterVec
	AuditEventsTotal   *prometheus.CounterVec
	AuditDroppedTotal  prometheus.Counter
}

// New creates and registers all gateway metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		LoginsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "talentgate_logins_total",
			Help: "Total number of successful logins",
		}),
		AuthFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talentgate_auth_failures_total",
			Help: "Authentication/authorization failures by reason",
		}, []string{"reason"}),
		SessionsEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "talentgate_sessions_evicted_total",
			Help: "Sessions evicted by the concurrent-session limit",
		}),
		SessionsSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "talentgate_sessions_swept_total",
			Help: "Expired sessions removed by the background sweep",
		}),
		ProxyRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talentgate_proxy_requests_total",
			Help: "Proxied requests by downstream service and status class",
		}, []string{"service", "status"}),
		ProxyDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "talentgate_proxy_duration_seconds",
			Help:    "Latency of proxied downstream calls",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"service"}),
		BreakerTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talentgate_breaker_transitions_total",
			Help: "Circuit breaker state transitions by service and new state",
		}, []string{"service", "state"}),
		AuditEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "talentgate_audit_events_total",
			Help: "Audit events recorded by event type",
		}, []string{"event_type"}),
		AuditDroppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "talentgate_audit_dropped_total",
			Help: "Audit events dropped because the queue was full",
		}),
	}
}
