// Package bucketstore holds the fixed-width time-bucketed hashtag counters
// behind the trending engine. It is the one piece of mutable shared state in
// the core: many concurrent readers, a bounded number of writers.
//
// Expiry is explicit: every read and write checks bucket age against the
// retention horizon rather than trusting a cache backend's own eviction
// timing. Lateness and liveness are evaluated at bucket granularity: a
// bucket is live while its start is >= BucketFor(now-retention), so an event
// landing in the partially retained boundary bucket is still counted.
package bucketstore

import (
	"context"
	"time"
)

// Bucket is one fixed-width time slice of a hashtag's usage count.
type Bucket struct {
	Start time.Time
	Count int64
}

// Stats is a read-only snapshot of the store for operability.
type Stats struct {
	Hashtags        int           `json:"total_hashtags"`
	Buckets         int           `json:"total_buckets"`
	ApproxBytes     int64         `json:"approx_cache_bytes"`
	OldestBucketAge time.Duration `json:"-"`
}

// Delta is a staged batch of increments keyed by hashtag and aligned bucket
// start (unix seconds). The sync coordinator folds a whole fetched batch into
// a Delta and commits it through ApplyDelta in one call, so a failed or
// cancelled batch leaves no partial state behind.
type Delta map[string]map[int64]int64

// Add stages n usages of hashtag in the bucket starting at bucketStart.
func (d Delta) Add(hashtag string, bucketStart time.Time, n int64) {
	buckets, ok := d[hashtag]
	if !ok {
		buckets = make(map[int64]int64)
		d[hashtag] = buckets
	}
	buckets[bucketStart.Unix()] += n
}

// Events returns the total number of staged increments.
func (d Delta) Events() int64 {
	var total int64
	for _, buckets := range d {
		for _, n := range buckets {
			total += n
		}
	}
	return total
}

// Store is the bucketed counter cache.
//
// Reads may race with concurrent increments; snapshot-at-call semantics are
// not guaranteed. Increments to the same (hashtag, bucket) never lose
// updates.
type Store interface {
	// Increment adds one usage at occurredAt to the aligned bucket, creating
	// it if absent. Returns false when the event is older than the retention
	// horizon: the usage is dropped and counted, never an error.
	Increment(ctx context.Context, hashtag string, occurredAt time.Time) (applied bool, err error)

	// ApplyDelta commits a staged batch atomically (one lock acquisition for
	// the in-memory store, one MULTI/EXEC for Redis). Buckets older than the
	// retention horizon are dropped and reported in late.
	ApplyDelta(ctx context.Context, delta Delta) (applied, late int64, err error)

	// ReadRange returns the live buckets for hashtag whose start falls in
	// [from, to), sorted by start ascending. Never creates buckets; missing
	// buckets are zero; expired buckets are never returned.
	ReadRange(ctx context.Context, hashtag string, from, to time.Time) ([]Bucket, error)

	// ReadAllActive returns, for every hashtag with at least one live bucket
	// as of asOf, the sum of its live bucket counts.
	ReadAllActive(ctx context.Context, asOf time.Time) (map[string]int64, error)

	// Stats reports a snapshot of the store as of asOf. Never mutates state.
	Stats(ctx context.Context, asOf time.Time) (Stats, error)
}
