package recommend

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var recommendationQueriesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tagpulse_recommendation_queries_total",
	Help: "Total number of co-occurrence recommendation queries served",
})
