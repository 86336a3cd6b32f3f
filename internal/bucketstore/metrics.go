package bucketstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the bucket cache.
var (
	// incrementsTotal counts usages folded into buckets.
	incrementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagpulse_bucket_increments_total",
		Help: "Total number of hashtag usages folded into buckets",
	})

	// lateEventsTotal counts usages dropped for being older than the retention horizon.
	lateEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagpulse_late_events_dropped_total",
		Help: "Total number of late events dropped at the retention horizon",
	})

	// evictionsTotal counts buckets evicted past the retention horizon.
	evictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagpulse_bucket_evictions_total",
		Help: "Total number of expired buckets evicted",
	})

	// activeBuckets is the live bucket count observed at the last sweep.
	activeBuckets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tagpulse_active_buckets",
		Help: "Number of live buckets as of the last eviction sweep",
	})
)
