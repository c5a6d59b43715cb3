package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments the HTTP surface records
// against, so callers can scrape /metrics for request volume, latency
// and decision outcomes. PendingApprovals is registered, but no handler
// sets it, so it always reports 0.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	PolicyDecisions  *prometheus.CounterVec
	PendingApprovals prometheus.Gauge
}

// NewMetrics registers Warden's metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "warden",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled by the gateway surface",
			},
			[]string{"route", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "warden",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		PolicyDecisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "warden",
				Name:      "policy_decisions_total",
				Help:      "Total policy decisions by verdict",
			},
			[]string{"verdict"},
		),
		PendingApprovals: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "warden",
				Name:      "pending_approvals",
				Help:      "Pending-approval gauge; not updated by the gateway, always 0",
			},
		),
	}
}
