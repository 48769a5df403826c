// Package metrics holds the process-wide Prometheus collectors. They are
// registered on the default registry and exposed through /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache effectiveness on the redirect fast path.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snaplink_cache_hits_total",
		Help: "Link cache lookups served from memory",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snaplink_cache_misses_total",
		Help: "Link cache lookups that fell through to the store",
	})
	// Counts every removal path: capacity eviction, TTL expiry, explicit
	// invalidation and lazy business-expiry cleanup.
	CacheRemovals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snaplink_cache_removals_total",
		Help: "Link cache entries removed by eviction, TTL expiry, or invalidation",
	})

	// The analytics queue is best-effort: when it is full the newest event
	// is dropped and only this counter notices.
	AnalyticsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snaplink_analytics_dropped_total",
		Help: "Click events dropped because the analytics queue was full",
	})
	AnalyticsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snaplink_analytics_inserted_total",
		Help: "Click events durably inserted by the analytics workers",
	})

	// Redirect outcomes partitioned by result kind.
	Redirects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snaplink_redirects_total",
		Help: "Redirect resolutions by outcome",
	}, []string{"outcome"}) // ok, not_found, expired, error
)
