// Package metrics declares licensehub's Prometheus collectors. They are
// registered against the default registry and served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheRequests counts cache lookups by backend and result (hit|miss).
	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "licensehub_cache_requests_total",
			Help: "Cache lookups by backend and result.",
		},
		[]string{"backend", "result"},
	)

	// CacheInvalidations counts keys removed by prefix invalidation.
	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "licensehub_cache_invalidated_keys_total",
			Help: "Keys removed by prefix invalidation, by backend.",
		},
		[]string{"backend"},
	)

	// CoordinatorOps counts consistency operations by name and outcome
	// (ok|error).
	CoordinatorOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "licensehub_coordinator_operations_total",
			Help: "Multi-collection mutations by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	// RemoteCalls counts remote API attempts by outcome
	// (ok|fallback|error).
	RemoteCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "licensehub_remote_calls_total",
			Help: "Remote API attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// ReadinessRowsCreated counts mirror rows synthesized by the readiness
	// auditor, by collection.
	ReadinessRowsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "licensehub_readiness_rows_created_total",
			Help: "Mirror rows created by the readiness auditor.",
		},
		[]string{"collection"},
	)

	// RateLimited counts API writes rejected by the per-identity limiter.
	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "licensehub_api_rate_limited_total",
			Help: "API writes rejected with 429.",
		},
	)

	// Forbidden counts API requests refused because they target another
	// organization.
	Forbidden = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "licensehub_api_forbidden_total",
			Help: "API requests rejected with 403.",
		},
	)
)

// Outcome maps an error to the "ok"/"error" label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
