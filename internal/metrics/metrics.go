// Package metrics exposes Prometheus metrics for the governance pipeline:
// request outcomes, cache effectiveness, sensitive-data findings, spend,
// and upstream latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gatewarden"

// LatencyBuckets covers upstream LLM calls, which routinely take seconds.
var LatencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 3.0, 5.0,
	7.5, 10.0, 15.0, 20.0, 30.0, 60.0, 120.0,
}

var (
	// RequestsTotal counts pipeline runs by model and terminal outcome.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total requests processed, labeled by terminal pipeline outcome",
		},
		[]string{"model", "outcome"},
	)

	// CacheHits and CacheMisses track response cache effectiveness.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Responses served from the cache",
		},
		[]string{"model"},
	)
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Cache lookups that went to the upstream",
		},
		[]string{"model"},
	)

	// PIIFindings counts detected sensitive spans by entity type and
	// direction (request or response).
	PIIFindings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pii_findings_total",
			Help:      "Sensitive data findings by entity type and scan direction",
		},
		[]string{"type", "direction"},
	)

	// SpendUSD accumulates the actual cost of completed requests.
	SpendUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spend_usd_total",
			Help:      "Accumulated request cost in USD",
		},
		[]string{"model"},
	)

	// RateLimitRejections counts admissions rejected per granularity.
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by the rate limiter, by window granularity",
		},
		[]string{"granularity"},
	)

	// UpstreamLatency measures the upstream provider call.
	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_latency_seconds",
			Help:      "Upstream completion call latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"model"},
	)

	// StoreErrors counts shared-store failures by operation area. A rising
	// rate with fail-open enabled means limits are silently not enforced.
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Shared store failures by subsystem",
		},
		[]string{"subsystem"},
	)
)
