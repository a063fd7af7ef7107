// ABOUTME: Prometheus collectors for authentication decisions, key issuance and HTTP traffic
// ABOUTME: Registered on the default registry at init and served by promhttp

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Auth decision outcomes.
const (
	OutcomeBypassed      = "bypassed"
	OutcomeMissing       = "missing"
	OutcomeInvalid       = "invalid"
	OutcomeAuthenticated = "authenticated"
	OutcomeForbidden     = "forbidden"
	OutcomeError         = "error"
)

var (
	// AuthDecisions counts request gate and permission gate outcomes.
	AuthDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broodpress_auth_decisions_total",
			Help: "Authentication and authorization decisions",
		},
		[]string{"outcome"},
	)

	// KeysIssued counts API keys minted.
	KeysIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "broodpress_api_keys_issued_total",
			Help: "API keys issued",
		},
	)

	// RequestsTotal counts HTTP requests by method and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broodpress_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "status"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broodpress_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(
		AuthDecisions,
		KeysIssued,
		RequestsTotal,
		RequestDuration,
	)
}

// RecordAuthDecision increments the decision counter for outcome.
func RecordAuthDecision(outcome string) {
	AuthDecisions.WithLabelValues(outcome).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
