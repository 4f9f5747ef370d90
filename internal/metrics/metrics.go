// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "connect"

var (
	// VendorRequests counts outbound vendor API calls by platform and status class.
	VendorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "vendor_requests_total",
		Help:      "Outbound vendor API requests.",
	}, []string{"platform", "status"})

	// VendorLatency observes vendor API latency in seconds.
	VendorLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "vendor_request_duration_seconds",
		Help:      "Outbound vendor API request duration.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"platform"})

	// Retries counts retry attempts after a retryable failure.
	Retries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retries_total",
		Help:      "Retry attempts against vendor APIs.",
	}, []string{"platform"})

	// BreakerState is 0 closed, 1 open, 2 half-open.
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state per platform (0 closed, 1 open, 2 half-open).",
	}, []string{"platform"})

	// TokenRefreshes counts refresh grants by result.
	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refresh_total",
		Help:      "OAuth token refresh attempts.",
	}, []string{"platform", "result"})

	// Publishes counts publish calls by result.
	Publishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "publish_total",
		Help:      "Publish attempts per platform.",
	}, []string{"platform", "result"})

	// StateVerifications counts OAuth state checks by outcome reason.
	StateVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "oauth_state_verifications_total",
		Help:      "OAuth state verifications by outcome.",
	}, []string{"result"})

	// HealthChecks counts connection health checks by resulting status.
	HealthChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "health_checks_total",
		Help:      "Connection health checks by status.",
	}, []string{"platform", "status"})
)

// Result labels an outcome as success or failure.
func Result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
