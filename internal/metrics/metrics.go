// Package metrics exposes Prometheus counters for authentication outcomes and
// identity provider calls.
package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for auth operations.
const (
	OutcomeSuccess = "success"
	OutcomeInvalid = "invalid" // rejected by local form validation
	OutcomeFailure = "failure" // rejected by the provider or transport
)

var (
	authOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_auth_operations_total",
		Help: "Total number of auth operations by outcome",
	}, []string{"operation", "outcome"})

	identityRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gatekeeper_identity_request_duration_seconds",
		Help:    "Latency of identity provider requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	identityErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gatekeeper_identity_errors_total",
		Help: "Total number of failed identity provider requests",
	}, []string{"endpoint", "kind"})
)

// RecordAuthOperation counts one auth operation with its outcome.
func RecordAuthOperation(operation, outcome string) {
	authOperations.WithLabelValues(operation, outcome).Inc()
}

// ObserveIdentityRequest records the latency of a provider call.
func ObserveIdentityRequest(endpoint string, duration time.Duration) {
	identityRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordIdentityError counts a failed provider call. kind is "network", "client" or "server".
func RecordIdentityError(endpoint, kind string) {
	identityErrors.WithLabelValues(endpoint, kind).Inc()
}

// Handler serves the default registry for scraping.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
