package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// syncRunsTotal counts completed sync runs.
	syncRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagpulse_sync_runs_total",
		Help: "Total number of successful sync runs",
	})

	// syncFailuresTotal counts sync runs that exhausted their retry budget.
	syncFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagpulse_sync_failures_total",
		Help: "Total number of failed sync runs",
	})

	// syncRetriesTotal counts individual fetch retries inside sync runs.
	syncRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagpulse_sync_retries_total",
		Help: "Total number of event fetch retries",
	})

	// syncEventsAppliedTotal counts usages folded into the cache by sync.
	syncEventsAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagpulse_sync_events_applied_total",
		Help: "Total number of hashtag usages applied by sync runs",
	})
)
