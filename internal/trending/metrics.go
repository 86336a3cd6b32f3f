package trending

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// queriesTotal counts trending queries served.
	queriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagpulse_trending_queries_total",
		Help: "Total number of trending queries served",
	})

	// staleQueriesTotal counts queries answered from data older than one sync interval.
	staleQueriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagpulse_stale_queries_total",
		Help: "Total number of trending queries served from stale data",
	})
)
