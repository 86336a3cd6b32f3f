// Package syncer folds new events from the persistent log into the bucket
// cache and owns the engine's high-water mark.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"github.com/tagpulse-lab/tagpulse/internal/bucketstore"
	"github.com/tagpulse-lab/tagpulse/internal/core/storage"
	core "github.com/tagpulse-lab/tagpulse/internal/core/trending"
)

// ErrSyncFailed marks a sync run that exhausted its retry budget. The cursor
// is unchanged and the engine keeps serving from the cached state it has.
var ErrSyncFailed = errors.New("sync failed")

const (
	defaultBucketWidth     = time.Minute
	defaultRetryAttempts   = 3
	defaultBackoffMin      = 100 * time.Millisecond
	defaultBackoffMax      = 5 * time.Second
	defaultFetchTimeout    = 10 * time.Second
	defaultInitialLookback = time.Hour

	// breakerTrip exceeds the per-run retry budget so a single bad run does
	// not open the breaker; sustained failure across runs does.
	breakerTrip    = 8
	breakerTimeout = 30 * time.Second
)

// Options controls retry, backoff and cursor behavior for a coordinator.
type Options struct {
	BucketWidth     time.Duration
	RetryAttempts   int
	BackoffMin      time.Duration
	BackoffMax      time.Duration
	FetchTimeout    time.Duration
	InitialLookback time.Duration // first-ever sync starts at until - lookback
	NowFn           func() time.Time
}

func (o Options) normalized() Options {
	n := o
	// A zero width would make every event its own bucket.
	if n.BucketWidth <= 0 {
		n.BucketWidth = defaultBucketWidth
	}
	if n.RetryAttempts <= 0 {
		n.RetryAttempts = defaultRetryAttempts
	}
	if n.BackoffMin <= 0 {
		n.BackoffMin = defaultBackoffMin
	}
	if n.BackoffMax < n.BackoffMin {
		n.BackoffMax = defaultBackoffMax
	}
	if n.FetchTimeout <= 0 {
		n.FetchTimeout = defaultFetchTimeout
	}
	if n.InitialLookback <= 0 {
		n.InitialLookback = defaultInitialLookback
	}
	if n.NowFn == nil {
		n.NowFn = func() time.Time { return time.Now().UTC() }
	}
	return n
}

// Coordinator pulls events past the cursor, stages a whole batch as a delta,
// commits it through the store, and only then advances the cursor.
//
// Batch replay safety: the staged delta commits through a single ApplyDelta
// call (memory store: one lock acquisition; Redis: one MULTI/EXEC). A failed
// or cancelled run leaves cursor and cache untouched, so a retry re-fetches
// from the old cursor and cannot double count.
//
// Mutual exclusion: concurrent Sync calls collapse through singleflight into
// the one in-flight run and share its result; the cursor is only ever
// advanced by that run, under the cursor mutex.
type Coordinator struct {
	source  storage.EventSource
	store   bucketstore.Store
	opts    Options
	breaker *gobreaker.CircuitBreaker[[]storage.HashtagEvent]
	group   singleflight.Group

	mu          sync.Mutex
	cursor      time.Time
	cursorSet   bool
	lastSuccess time.Time
	lastSyncOK  bool
}

// New creates a coordinator with its event-source circuit breaker.
func New(source storage.EventSource, store bucketstore.Store, opts Options) *Coordinator {
	breaker := gobreaker.NewCircuitBreaker[[]storage.HashtagEvent](gobreaker.Settings{
		Name:    "eventsource",
		Timeout: breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTrip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("[Sync] Event source breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Coordinator{
		source:  source,
		store:   store,
		opts:    opts.normalized(),
		breaker: breaker,
	}
}

// Sync folds all events in (cursor, until] into the bucket cache and advances
// the cursor to until. lookback overrides the configured initial lookback and
// only matters when no cursor exists yet (first sync after start or reset).
//
// Concurrent callers join the in-flight run and receive its result; note the
// shared run executes under the first caller's context.
func (c *Coordinator) Sync(ctx context.Context, until time.Time, lookback time.Duration) (*core.SyncResult, error) {
	v, err, shared := c.group.Do("sync", func() (interface{}, error) {
		return c.run(ctx, until, lookback)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("[Sync] Joined in-flight sync run")
	}
	return v.(*core.SyncResult), nil
}

func (c *Coordinator) run(ctx context.Context, until time.Time, lookback time.Duration) (*core.SyncResult, error) {
	runID := uuid.NewString()
	since := c.sinceFor(until, lookback)

	events, err := c.fetchWithRetry(ctx, since, until)
	if err != nil {
		syncFailuresTotal.Inc()
		return nil, fmt.Errorf("%w: fetch events since %s: %w", ErrSyncFailed, since.Format(time.RFC3339), err)
	}

	// Stage the whole batch, then commit it in one call.
	delta := make(bucketstore.Delta)
	skipped := 0
	for _, evt := range events {
		tag, err := core.NormalizeHashtag(evt.Hashtag)
		if err != nil {
			skipped++
			continue
		}
		delta.Add(tag, core.BucketFor(evt.OccurredAt, c.opts.BucketWidth), 1)
	}
	if skipped > 0 {
		slog.Warn("[Sync] Skipped events with malformed hashtags", "run_id", runID, "skipped", skipped)
	}

	applied, late, err := c.store.ApplyDelta(ctx, delta)
	if err != nil {
		syncFailuresTotal.Inc()
		return nil, fmt.Errorf("%w: apply batch: %w", ErrSyncFailed, err)
	}

	c.advance(until)
	syncRunsTotal.Inc()
	syncEventsAppliedTotal.Add(float64(applied))

	slog.Info("[Sync] Batch complete",
		"run_id", runID,
		"events_fetched", len(events),
		"events_applied", applied,
		"late_dropped", late,
		"cursor_advanced", fmt.Sprintf("%s -> %s", since.Format(time.RFC3339), until.Format(time.RFC3339)),
	)

	return &core.SyncResult{
		RunID:            runID,
		EventsApplied:    int(applied),
		LateDropped:      int(late),
		CursorAdvancedTo: until,
	}, nil
}

// fetchWithRetry reads the event log with bounded exponential backoff. Every
// attempt carries its own timeout; the breaker sits inside the loop so an
// open breaker fails attempts fast instead of hammering a down database.
func (c *Coordinator) fetchWithRetry(ctx context.Context, since, until time.Time) ([]storage.HashtagEvent, error) {
	backoff := c.opts.BackoffMin
	var lastErr error

	for attempt := 1; attempt <= c.opts.RetryAttempts; attempt++ {
		fetchCtx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
		events, err := c.breaker.Execute(func() ([]storage.HashtagEvent, error) {
			return c.source.ListHashtagEvents(fetchCtx, since, until)
		})
		cancel()
		if err == nil {
			return events, nil
		}
		lastErr = err

		if attempt == c.opts.RetryAttempts {
			break
		}
		syncRetriesTotal.Inc()
		slog.Warn("[Sync] Event fetch failed, retrying",
			"attempt", attempt,
			"max_attempts", c.opts.RetryAttempts,
			"backoff", backoff,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.opts.BackoffMax {
			backoff = c.opts.BackoffMax
		}
	}
	return nil, lastErr
}

// sinceFor returns the fetch lower bound: the cursor when one exists,
// otherwise until minus the (possibly overridden) initial lookback.
func (c *Coordinator) sinceFor(until time.Time, lookback time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cursorSet {
		return c.cursor
	}
	if lookback <= 0 {
		lookback = c.opts.InitialLookback
	}
	return until.Add(-lookback)
}

// advance moves the cursor forward monotonically and records the success.
func (c *Coordinator) advance(until time.Time) {
	now := c.opts.NowFn()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cursorSet || until.After(c.cursor) {
		c.cursor = until
		c.cursorSet = true
	}
	c.lastSuccess = now
	c.lastSyncOK = true
}

// Cursor returns the current high-water mark, if any sync has committed.
func (c *Coordinator) Cursor() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor, c.cursorSet
}

// LastSuccess returns the completion time of the last successful sync.
func (c *Coordinator) LastSuccess() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSuccess, c.lastSyncOK
}

// ForgetInFlight detaches future Sync calls from the current in-flight run.
// The shutdown drain uses it so its final sync starts fresh instead of
// joining a run doomed by the cancelled parent context.
func (c *Coordinator) ForgetInFlight() {
	c.group.Forget("sync")
}

// ResetCursor rewinds the cursor administratively. A zero t clears it, so the
// next sync starts from the initial lookback again.
func (c *Coordinator) ResetCursor(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.IsZero() {
		c.cursor = time.Time{}
		c.cursorSet = false
	} else {
		c.cursor = t
		c.cursorSet = true
	}
	slog.Info("[Sync] Cursor reset", "cursor", t)
}
