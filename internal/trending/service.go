// Package trending implements the window aggregator and the engine status
// reporter on top of the bucket store.
package trending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/tagpulse-lab/tagpulse/internal/bucketstore"
	core "github.com/tagpulse-lab/tagpulse/internal/core/trending"
)

var (
	// ErrInvalidQuery marks request validation errors that should return HTTP 400.
	ErrInvalidQuery = errors.New("invalid trending query")

	// ErrWindowExceedsHistory is returned when the requested window is longer
	// than the retention horizon. The caller sees the condition instead of a
	// silently under-reported count.
	ErrWindowExceedsHistory = fmt.Errorf("%w: window exceeds retention horizon", ErrInvalidQuery)
)

func invalidQueryf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}

// SyncInfo reports the sync coordinator's progress; the aggregator uses it to
// flag answers served from stale data.
type SyncInfo interface {
	// LastSuccess returns the completion time of the last successful sync.
	LastSuccess() (time.Time, bool)
	// Cursor returns the current high-water mark.
	Cursor() (time.Time, bool)
}

// Options configures the trending service.
type Options struct {
	BucketWidth  time.Duration
	Retention    time.Duration
	SyncInterval time.Duration
	QueryTimeout time.Duration
	NowFn        func() time.Time // defaults to time.Now().UTC
}

// Service answers top-K trending queries and status snapshots. It only ever
// reads the bucket store.
type Service struct {
	store    bucketstore.Store
	syncInfo SyncInfo
	opts     Options
	nowFn    func() time.Time
}

// NewService creates the trending query service.
func NewService(store bucketstore.Store, syncInfo SyncInfo, opts Options) *Service {
	nowFn := opts.NowFn
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:    store,
		syncInfo: syncInfo,
		opts:     opts,
		nowFn:    nowFn,
	}
}

// TopK returns the k highest-counted hashtags over the trailing window,
// ordered by count descending with lexicographic tie-break, plus whether the
// answer was served from stale data.
//
// Counts are exact integer sums over retained buckets. The window's lower
// bound is aligned down to the bucket grid, so a partially overlapping
// boundary bucket is counted whole.
func (s *Service) TopK(ctx context.Context, window time.Duration, k int) ([]core.TrendingCount, bool, error) {
	if k <= 0 {
		return nil, false, invalidQueryf("k must be > 0, got %d", k)
	}
	if window <= 0 {
		return nil, false, invalidQueryf("window must be > 0, got %s", window)
	}
	if window > s.opts.Retention {
		return nil, false, fmt.Errorf("%w (window %s, retention %s)",
			ErrWindowExceedsHistory, window, s.opts.Retention)
	}

	if s.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.QueryTimeout)
		defer cancel()
	}

	asOf := s.nowFn()
	from := core.WindowStart(asOf, window, s.opts.BucketWidth)

	active, err := s.store.ReadAllActive(ctx, asOf)
	if err != nil {
		return nil, false, fmt.Errorf("read active hashtags: %w", err)
	}

	counts := make([]core.TrendingCount, 0, len(active))
	for hashtag := range active {
		buckets, err := s.store.ReadRange(ctx, hashtag, from, asOf)
		if err != nil {
			return nil, false, fmt.Errorf("read range for %q: %w", hashtag, err)
		}
		var total int64
		for _, b := range buckets {
			total += b.Count
		}
		if total > 0 {
			counts = append(counts, core.TrendingCount{Hashtag: hashtag, Count: total})
		}
	}

	// Deterministic order: count descending, hashtag ascending on ties.
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Hashtag < counts[j].Hashtag
	})
	if len(counts) > k {
		counts = counts[:k]
	}

	queriesTotal.Inc()
	stale := s.isStale(asOf)
	if stale {
		staleQueriesTotal.Inc()
		slog.Warn("[Trending] Query served from stale data",
			"as_of", asOf,
			"sync_interval", s.opts.SyncInterval,
		)
	}
	return counts, stale, nil
}

// isStale reports whether the cache has not seen a successful sync within one
// sync interval. A stale answer is still an answer; staleness only degrades
// freshness, not correctness of what is cached.
func (s *Service) isStale(asOf time.Time) bool {
	if s.syncInfo == nil || s.opts.SyncInterval <= 0 {
		return false
	}
	last, ok := s.syncInfo.LastSuccess()
	if !ok {
		return true
	}
	return asOf.Sub(last) > s.opts.SyncInterval
}

// Status returns a read-only snapshot of the engine for operability.
// Safe to call concurrently with any other operation.
func (s *Service) Status(ctx context.Context) (*StatusResponse, error) {
	asOf := s.nowFn()

	stats, err := s.store.Stats(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("store stats: %w", err)
	}

	resp := &StatusResponse{
		TotalHashtags:          stats.Hashtags,
		TotalBuckets:           stats.Buckets,
		ApproxCacheBytes:       stats.ApproxBytes,
		OldestBucketAgeSeconds: int64(stats.OldestBucketAge.Seconds()),
		BucketWidthSeconds:     int64(s.opts.BucketWidth.Seconds()),
		RetentionSeconds:       int64(s.opts.Retention.Seconds()),
	}
	if s.syncInfo != nil {
		if cursor, ok := s.syncInfo.Cursor(); ok {
			resp.Cursor = &cursor
		}
		if last, ok := s.syncInfo.LastSuccess(); ok {
			resp.LastSyncAt = &last
		}
	}
	return resp, nil
}
