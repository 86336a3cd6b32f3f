package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tagpulse-lab/tagpulse/internal/bucketstore"
	"github.com/tagpulse-lab/tagpulse/internal/core/storage"
)

// fakeEventSource serves a fixed event set, optionally failing its first
// N calls or delaying each response.
type fakeEventSource struct {
	mu        sync.Mutex
	events    []storage.HashtagEvent
	failFirst int
	delay     time.Duration

	calls     int
	ctxErrs   []error
	lastSince time.Time
	lastUntil time.Time
}

func (f *fakeEventSource) ListHashtagEvents(ctx context.Context, since, until time.Time) ([]storage.HashtagEvent, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	f.lastSince = since
	f.lastUntil = until
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if call <= f.failFirst {
		return nil, errors.New("event source unavailable")
	}

	var out []storage.HashtagEvent
	for _, evt := range f.events {
		if evt.OccurredAt.After(since) && !evt.OccurredAt.After(until) {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (f *fakeEventSource) ListPostsContaining(ctx context.Context, hashtag string, since time.Time) ([]storage.PostHashtags, error) {
	return nil, nil
}

func (f *fakeEventSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// ctxErrAt returns the context error observed at the start of call i.
func (f *fakeEventSource) ctxErrAt(i int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctxErrs[i]
}

func testEvents(base time.Time) []storage.HashtagEvent {
	return []storage.HashtagEvent{
		{PostID: 1, Hashtag: "#Python", OccurredAt: base.Add(10 * time.Second)},
		{PostID: 1, Hashtag: "coding", OccurredAt: base.Add(10 * time.Second)},
		{PostID: 2, Hashtag: "python", OccurredAt: base.Add(70 * time.Second)},
	}
}

func newTestCoordinator(source storage.EventSource, now time.Time, attempts int) (*Coordinator, *bucketstore.MemoryStore) {
	nowFn := func() time.Time { return now }
	store := bucketstore.NewMemoryStore(bucketstore.MemoryOptions{
		BucketWidth: 60 * time.Second,
		Retention:   24 * time.Hour,
		NowFn:       nowFn,
	})
	coord := New(source, store, Options{
		BucketWidth:     60 * time.Second,
		RetryAttempts:   attempts,
		BackoffMin:      time.Millisecond,
		BackoffMax:      5 * time.Millisecond,
		FetchTimeout:    time.Second,
		InitialLookback: time.Hour,
		NowFn:           nowFn,
	})
	return coord, store
}

func TestSync_AppliesBatchAndAdvancesCursor(t *testing.T) {
	base := time.Unix(0, 0).UTC().Add(48 * time.Hour)
	now := base.Add(2 * time.Minute)
	source := &fakeEventSource{events: testEvents(base)}
	coord, store := newTestCoordinator(source, now, 3)

	result, err := coord.Sync(context.Background(), now, 0)
	require.NoError(t, err)
	require.Equal(t, 3, result.EventsApplied)
	require.Equal(t, 0, result.LateDropped)
	require.Equal(t, now, result.CursorAdvancedTo)
	require.NotEmpty(t, result.RunID)

	cursor, ok := coord.Cursor()
	require.True(t, ok)
	require.Equal(t, now, cursor)

	// Hashtags are normalized before counting: "#Python" and "python" merge.
	totals, err := store.ReadAllActive(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"python": 2, "coding": 1}, totals)
}

func TestSync_RetriesThenSucceeds(t *testing.T) {
	base := time.Unix(0, 0).UTC().Add(48 * time.Hour)
	now := base.Add(2 * time.Minute)

	// Fails on the first 2 attempts, succeeds within the 3-attempt budget.
	source := &fakeEventSource{events: testEvents(base), failFirst: 2}
	coord, store := newTestCoordinator(source, now, 3)

	result, err := coord.Sync(context.Background(), now, 0)
	require.NoError(t, err)
	require.Equal(t, 3, result.EventsApplied)
	require.Equal(t, 3, source.callCount())

	// The cursor advanced exactly once and nothing was double counted.
	cursor, ok := coord.Cursor()
	require.True(t, ok)
	require.Equal(t, now, cursor)

	totals, err := store.ReadAllActive(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, int64(2), totals["python"])
}

func TestSync_ExhaustedRetriesLeaveCursorUnchanged(t *testing.T) {
	base := time.Unix(0, 0).UTC().Add(48 * time.Hour)
	now := base.Add(2 * time.Minute)

	source := &fakeEventSource{events: testEvents(base), failFirst: 2}
	coord, store := newTestCoordinator(source, now, 2)

	_, err := coord.Sync(context.Background(), now, 0)
	require.ErrorIs(t, err, ErrSyncFailed)

	_, ok := coord.Cursor()
	require.False(t, ok)
	_, ok = coord.LastSuccess()
	require.False(t, ok)

	totals, err := store.ReadAllActive(context.Background(), now)
	require.NoError(t, err)
	require.Empty(t, totals)

	// Replaying the failed batch applies it exactly once.
	result, err := coord.Sync(context.Background(), now, 0)
	require.NoError(t, err)
	require.Equal(t, 3, result.EventsApplied)

	totals, err = store.ReadAllActive(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"python": 2, "coding": 1}, totals)
}

func TestSync_ConcurrentCallsCollapse(t *testing.T) {
	base := time.Unix(0, 0).UTC().Add(48 * time.Hour)
	now := base.Add(2 * time.Minute)

	source := &fakeEventSource{events: testEvents(base), delay: 50 * time.Millisecond}
	coord, store := newTestCoordinator(source, now, 3)

	const callers = 4
	results := make([]*struct {
		applied int
		err     error
	}, callers)

	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			res, err := coord.Sync(context.Background(), now, 0)
			out := &struct {
				applied int
				err     error
			}{err: err}
			if err == nil {
				out.applied = res.EventsApplied
			}
			results[i] = out
		}(i)
	}
	wg.Wait()

	// All callers joined the single in-flight run: one fetch, one apply.
	require.Equal(t, 1, source.callCount())
	for _, r := range results {
		require.NoError(t, r.err)
		require.Equal(t, 3, r.applied)
	}

	totals, err := store.ReadAllActive(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"python": 2, "coding": 1}, totals)
}

func TestSync_CancelledRunLeavesCommittedState(t *testing.T) {
	base := time.Unix(0, 0).UTC().Add(48 * time.Hour)
	now := base.Add(2 * time.Minute)

	source := &fakeEventSource{events: testEvents(base), delay: time.Second}
	coord, store := newTestCoordinator(source, now, 3)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := coord.Sync(ctx, now, 0)
	require.Error(t, err)

	// Nothing partially applied, cursor untouched.
	_, ok := coord.Cursor()
	require.False(t, ok)
	totals, err := store.ReadAllActive(context.Background(), now)
	require.NoError(t, err)
	require.Empty(t, totals)
}

func TestSync_InitialLookbackBoundsFirstFetch(t *testing.T) {
	now := time.Unix(0, 0).UTC().Add(48 * time.Hour)
	source := &fakeEventSource{}
	coord, _ := newTestCoordinator(source, now, 3)

	_, err := coord.Sync(context.Background(), now, 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, now.Add(-10*time.Minute), source.lastSince)
	require.Equal(t, now, source.lastUntil)

	// Second sync resumes from the cursor, ignoring the lookback.
	later := now.Add(time.Minute)
	_, err = coord.Sync(context.Background(), later, 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, now, source.lastSince)
}

func TestSync_LateEventsDroppedNotFatal(t *testing.T) {
	now := time.Unix(0, 0).UTC().Add(48 * time.Hour)
	source := &fakeEventSource{events: []storage.HashtagEvent{
		{PostID: 1, Hashtag: "python", OccurredAt: now.Add(-30 * time.Hour)},
		{PostID: 2, Hashtag: "python", OccurredAt: now.Add(-time.Minute)},
	}}
	coord, store := newTestCoordinator(source, now, 3)

	result, err := coord.Sync(context.Background(), now, 36*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, result.EventsApplied)
	require.Equal(t, 1, result.LateDropped)

	totals, err := store.ReadAllActive(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, int64(1), totals["python"])
}

func TestNew_DefaultsZeroBucketWidth(t *testing.T) {
	base := time.Unix(0, 0).UTC().Add(48 * time.Hour)
	now := base.Add(2 * time.Minute)
	nowFn := func() time.Time { return now }

	// Two events 10s apart must share one minute bucket even when the
	// caller never set a width.
	source := &fakeEventSource{events: []storage.HashtagEvent{
		{PostID: 1, Hashtag: "python", OccurredAt: base.Add(5 * time.Second)},
		{PostID: 2, Hashtag: "python", OccurredAt: base.Add(15 * time.Second)},
	}}
	store := bucketstore.NewMemoryStore(bucketstore.MemoryOptions{
		BucketWidth: time.Minute,
		Retention:   24 * time.Hour,
		NowFn:       nowFn,
	})
	coord := New(source, store, Options{BackoffMin: time.Millisecond, NowFn: nowFn})

	_, err := coord.Sync(context.Background(), now, 0)
	require.NoError(t, err)

	buckets, err := store.ReadRange(context.Background(), "python", base, now)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	require.Equal(t, base, buckets[0].Start)
	require.Equal(t, int64(2), buckets[0].Count)
}

func TestSync_ForgetInFlightDetachesFromDoomedRun(t *testing.T) {
	base := time.Unix(0, 0).UTC().Add(48 * time.Hour)
	now := base.Add(2 * time.Minute)

	source := &fakeEventSource{events: testEvents(base), delay: 200 * time.Millisecond}
	coord, store := newTestCoordinator(source, now, 1)

	ctx, cancel := context.WithCancel(context.Background())
	doomed := make(chan error, 1)
	go func() {
		_, err := coord.Sync(ctx, now, 0)
		doomed <- err
	}()

	require.Eventually(t, func() bool { return source.callCount() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	coord.ForgetInFlight()

	// The detached caller starts its own run instead of joining the one
	// dying under the cancelled context.
	result, err := coord.Sync(context.Background(), now, 0)
	require.NoError(t, err)
	require.Equal(t, 3, result.EventsApplied)
	require.Error(t, <-doomed)
	require.Equal(t, 2, source.callCount())

	totals, err := store.ReadAllActive(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"python": 2, "coding": 1}, totals)
}

func TestResetCursor(t *testing.T) {
	now := time.Unix(0, 0).UTC().Add(48 * time.Hour)
	source := &fakeEventSource{}
	coord, _ := newTestCoordinator(source, now, 3)

	_, err := coord.Sync(context.Background(), now, 0)
	require.NoError(t, err)
	_, ok := coord.Cursor()
	require.True(t, ok)

	coord.ResetCursor(time.Time{})
	_, ok = coord.Cursor()
	require.False(t, ok)

	mark := now.Add(-5 * time.Minute)
	coord.ResetCursor(mark)
	cursor, ok := coord.Cursor()
	require.True(t, ok)
	require.Equal(t, mark, cursor)
}
