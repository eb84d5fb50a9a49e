// Package telemetry provides observability primitives for the mediagate gateway.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the gateway.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ActiveRequests   prometheus.Gauge
	UpstreamDuration *prometheus.HistogramVec
	UpstreamErrors   *prometheus.CounterVec
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	CacheErrors      *prometheus.CounterVec
	CacheWriteTTL    *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediagate",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "mediagate",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mediagate",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "mediagate",
			Name:                            "upstream_duration_seconds",
			Help:                            "Upstream GraphQL call duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"query"}),

		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediagate",
			Name:      "upstream_errors_total",
			Help:      "Total upstream GraphQL errors by query and status.",
		}, []string{"query", "status"}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mediagate",
			Name:      "cache_hits_total",
			Help:      "Total media cache hits.",
		}),

		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mediagate",
			Name:      "cache_misses_total",
			Help:      "Total media cache misses.",
		}),

		CacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediagate",
			Name:      "cache_errors_total",
			Help:      "Total cache store errors by operation.",
		}, []string{"op"}),

		CacheWriteTTL: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mediagate",
			Name:      "cache_write_ttl_seconds",
			Help:      "TTL assigned to media cache writes, by policy.",
			Buckets:   []float64{60, 600, 3600, 6 * 3600, 86400, 3 * 86400, 7 * 86400},
		}, []string{"policy"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.UpstreamDuration,
		m.UpstreamErrors,
		m.CacheHits,
		m.CacheMisses,
		m.CacheErrors,
		m.CacheWriteTTL,
	)

	return m
}
