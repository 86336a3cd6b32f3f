package bucketstore

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tagpulse-lab/tagpulse/internal/core/trending"
)

// rough per-entry cost estimates for the Stats footprint approximation
const (
	bytesPerBucket = 48
	bytesPerSeries = 96
)

// MemoryStore is the default in-process Store implementation.
//
// Layout: an RWMutex-guarded map of hashtag → series, each series holding its
// own lock and a map of bucket start → atomic counter. Concurrent increments
// to the same bucket contend only on the atomic add; ApplyDelta takes the
// outer write lock so a batch commit is not interleaved with other writers.
type MemoryStore struct {
	width     time.Duration
	retention time.Duration
	nowFn     func() time.Time

	mu     sync.RWMutex
	series map[string]*tagSeries

	lastSweep atomic.Int64 // unix of the bucket in which the last sweep ran
}

type tagSeries struct {
	mu      sync.RWMutex
	buckets map[int64]*atomic.Int64 // bucket start unix → count
}

// MemoryOptions configures a MemoryStore.
type MemoryOptions struct {
	BucketWidth time.Duration
	Retention   time.Duration
	NowFn       func() time.Time // defaults to time.Now().UTC
}

// NewMemoryStore creates an empty in-memory bucket store.
func NewMemoryStore(opts MemoryOptions) *MemoryStore {
	if opts.NowFn == nil {
		opts.NowFn = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		width:     opts.BucketWidth,
		retention: opts.Retention,
		nowFn:     opts.NowFn,
		series:    make(map[string]*tagSeries),
	}
}

// horizonStart is the start of the oldest live bucket as of now.
func (s *MemoryStore) horizonStart(now time.Time) time.Time {
	return trending.WindowStart(now, s.retention, s.width)
}

// Increment implements Store.
func (s *MemoryStore) Increment(ctx context.Context, hashtag string, occurredAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	now := s.nowFn()
	bucketStart := trending.BucketFor(occurredAt, s.width)
	if bucketStart.Before(s.horizonStart(now)) {
		lateEventsTotal.Inc()
		return false, nil
	}

	s.maybeSweep(now)

	series := s.getOrCreateSeries(hashtag)
	series.counter(bucketStart.Unix()).Add(1)
	incrementsTotal.Inc()
	return true, nil
}

// ApplyDelta implements Store. The whole batch commits under one write lock:
// either every staged increment is visible or, if the context was cancelled
// before the lock was taken, none are.
func (s *MemoryStore) ApplyDelta(ctx context.Context, delta Delta) (int64, int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	now := s.nowFn()
	horizon := s.horizonStart(now).Unix()

	var applied, late int64

	s.mu.Lock()
	defer s.mu.Unlock()

	for hashtag, buckets := range delta {
		series, ok := s.series[hashtag]
		for start, n := range buckets {
			if start < horizon {
				late += n
				continue
			}
			if !ok {
				series = &tagSeries{buckets: make(map[int64]*atomic.Int64)}
				s.series[hashtag] = series
				ok = true
			}
			series.counter(start).Add(n)
			applied += n
		}
	}

	incrementsTotal.Add(float64(applied))
	lateEventsTotal.Add(float64(late))
	return applied, late, nil
}

// ReadRange implements Store. Work is bounded by min(window/width, series
// size): a narrow window probes its aligned bucket starts directly instead of
// scanning every retained bucket of the series.
func (s *MemoryStore) ReadRange(ctx context.Context, hashtag string, from, to time.Time) ([]Bucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	live := s.horizonStart(s.nowFn())
	if from.Before(live) {
		from = live
	}

	s.mu.RLock()
	series, ok := s.series[hashtag]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	fromUnix, toUnix := from.Unix(), to.Unix()
	widthSec := int64(s.width / time.Second)

	// First aligned bucket start at or after from.
	firstStart := trending.BucketFor(from, s.width).Unix()
	if firstStart < fromUnix {
		firstStart += widthSec
	}

	var buckets []Bucket

	series.mu.RLock()
	if span := keyedSpan(firstStart, toUnix, widthSec); span >= 0 && span < int64(len(series.buckets)) {
		buckets = make([]Bucket, 0, span+1)
		for start := firstStart; start < toUnix; start += widthSec {
			if count, ok := series.buckets[start]; ok {
				if n := count.Load(); n > 0 {
					buckets = append(buckets, Bucket{Start: time.Unix(start, 0).UTC(), Count: n})
				}
			}
		}
		series.mu.RUnlock()
		return buckets, nil
	}

	buckets = make([]Bucket, 0, len(series.buckets))
	for start, count := range series.buckets {
		if start >= fromUnix && start < toUnix {
			if n := count.Load(); n > 0 {
				buckets = append(buckets, Bucket{Start: time.Unix(start, 0).UTC(), Count: n})
			}
		}
	}
	series.mu.RUnlock()

	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Start.Before(buckets[j].Start) })
	return buckets, nil
}

// ReadAllActive implements Store.
func (s *MemoryStore) ReadAllActive(ctx context.Context, asOf time.Time) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	horizon := trending.WindowStart(asOf, s.retention, s.width).Unix()

	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]int64, len(s.series))
	for hashtag, series := range s.series {
		series.mu.RLock()
		var sum int64
		for start, count := range series.buckets {
			if start >= horizon {
				sum += count.Load()
			}
		}
		series.mu.RUnlock()
		if sum > 0 {
			totals[hashtag] = sum
		}
	}
	return totals, nil
}

// Stats implements Store.
func (s *MemoryStore) Stats(ctx context.Context, asOf time.Time) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	horizon := trending.WindowStart(asOf, s.retention, s.width).Unix()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	oldest := int64(0)
	for hashtag, series := range s.series {
		series.mu.RLock()
		liveBuckets := 0
		for start := range series.buckets {
			if start < horizon {
				continue
			}
			liveBuckets++
			if oldest == 0 || start < oldest {
				oldest = start
			}
		}
		series.mu.RUnlock()
		if liveBuckets == 0 {
			continue
		}
		st.Hashtags++
		st.Buckets += liveBuckets
		st.ApproxBytes += bytesPerSeries + int64(len(hashtag)) + int64(liveBuckets)*bytesPerBucket
	}
	if oldest != 0 {
		st.OldestBucketAge = asOf.Sub(time.Unix(oldest, 0).UTC())
	}
	return st, nil
}

// keyedSpan returns how many aligned starts the direct probe would visit, or
// -1 when the width is too coarse to key on (forces the map scan).
func keyedSpan(firstStart, toUnix, widthSec int64) int64 {
	if widthSec <= 0 {
		return -1
	}
	return (toUnix - firstStart) / widthSec
}

// getOrCreateSeries returns the series for hashtag, creating it if absent.
func (s *MemoryStore) getOrCreateSeries(hashtag string) *tagSeries {
	s.mu.RLock()
	series, ok := s.series[hashtag]
	s.mu.RUnlock()
	if ok {
		return series
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if series, ok = s.series[hashtag]; ok {
		return series
	}
	series = &tagSeries{buckets: make(map[int64]*atomic.Int64)}
	s.series[hashtag] = series
	return series
}

// counter returns the bucket counter for start, creating it if absent.
// Callers hold at least a read lock on the store; bucket creation takes the
// series lock so concurrent creators converge on one counter.
func (ts *tagSeries) counter(start int64) *atomic.Int64 {
	ts.mu.RLock()
	c, ok := ts.buckets[start]
	ts.mu.RUnlock()
	if ok {
		return c
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if c, ok = ts.buckets[start]; ok {
		return c
	}
	c = new(atomic.Int64)
	ts.buckets[start] = c
	return c
}

// maybeSweep evicts expired buckets at most once per bucket width, mirroring
// the lazy cleanup the write path has always piggybacked on.
func (s *MemoryStore) maybeSweep(now time.Time) {
	currentBucket := trending.BucketFor(now, s.width).Unix()
	last := s.lastSweep.Load()
	if currentBucket <= last || !s.lastSweep.CompareAndSwap(last, currentBucket) {
		return
	}

	horizon := s.horizonStart(now).Unix()
	evicted := 0
	liveTotal := 0

	s.mu.Lock()
	for hashtag, series := range s.series {
		series.mu.Lock()
		for start := range series.buckets {
			if start < horizon {
				delete(series.buckets, start)
				evicted++
			}
		}
		remaining := len(series.buckets)
		series.mu.Unlock()
		if remaining == 0 {
			delete(s.series, hashtag)
		} else {
			liveTotal += remaining
		}
	}
	s.mu.Unlock()

	if evicted > 0 {
		evictionsTotal.Add(float64(evicted))
	}
	activeBuckets.Set(float64(liveTotal))
}
