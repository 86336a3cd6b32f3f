package bucketstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tagpulse-lab/tagpulse/internal/core/trending"
)

const (
	tagIndexKey     = "tagpulse:hashtags"
	bucketKeyPrefix = "tagpulse:buckets:"
)

// RedisStore is the shared-cache Store implementation. Each hashtag maps to a
// hash of bucket-start → count fields; a set indexes the known hashtags.
//
// Redis has no per-field TTL, so liveness is enforced the same way as the
// memory store: reads filter by bucket start against the retention horizon,
// and ApplyDelta opportunistically deletes expired fields of the hashtags it
// touches. The key-level TTL is only a backstop for abandoned hashtags.
type RedisStore struct {
	cli       *redis.Client
	width     time.Duration
	retention time.Duration
	ttl       time.Duration
	nowFn     func() time.Time
}

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr        string
	DB          int
	BucketWidth time.Duration
	Retention   time.Duration
	BucketTTL   time.Duration // key-level backstop TTL, >= Retention
	NowFn       func() time.Time
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	cli := redis.NewClient(&redis.Options{Addr: opts.Addr, DB: opts.DB})
	if err := cli.Ping(ctx).Err(); err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", opts.Addr, err)
	}
	if opts.NowFn == nil {
		opts.NowFn = func() time.Time { return time.Now().UTC() }
	}
	return &RedisStore{
		cli:       cli,
		width:     opts.BucketWidth,
		retention: opts.Retention,
		ttl:       opts.BucketTTL,
		nowFn:     opts.NowFn,
	}, nil
}

// Close releases the client.
func (s *RedisStore) Close() error { return s.cli.Close() }

func (s *RedisStore) horizonStart(now time.Time) time.Time {
	return trending.WindowStart(now, s.retention, s.width)
}

func bucketKey(hashtag string) string { return bucketKeyPrefix + hashtag }

// Increment implements Store.
func (s *RedisStore) Increment(ctx context.Context, hashtag string, occurredAt time.Time) (bool, error) {
	now := s.nowFn()
	bucketStart := trending.BucketFor(occurredAt, s.width)
	if bucketStart.Before(s.horizonStart(now)) {
		lateEventsTotal.Inc()
		return false, nil
	}

	pipe := s.cli.TxPipeline()
	pipe.HIncrBy(ctx, bucketKey(hashtag), formatBucketField(bucketStart.Unix()), 1)
	pipe.Expire(ctx, bucketKey(hashtag), s.ttl)
	pipe.SAdd(ctx, tagIndexKey, hashtag)
	pipe.Expire(ctx, tagIndexKey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis increment %q: %w", hashtag, err)
	}
	incrementsTotal.Inc()
	return true, nil
}

// ApplyDelta implements Store. The staged batch commits in one MULTI/EXEC, so
// a failed or cancelled batch leaves no partial counts behind. Expired fields
// of the touched hashtags are deleted in the same transaction.
func (s *RedisStore) ApplyDelta(ctx context.Context, delta Delta) (int64, int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	now := s.nowFn()
	horizon := s.horizonStart(now).Unix()

	var applied, late int64

	pipe := s.cli.TxPipeline()
	for hashtag, buckets := range delta {
		key := bucketKey(hashtag)
		touched := false
		for start, n := range buckets {
			if start < horizon {
				late += n
				continue
			}
			pipe.HIncrBy(ctx, key, formatBucketField(start), n)
			applied += n
			touched = true
		}
		if touched {
			pipe.Expire(ctx, key, s.ttl)
			pipe.SAdd(ctx, tagIndexKey, hashtag)
		}
	}
	if applied > 0 {
		pipe.Expire(ctx, tagIndexKey, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("redis apply delta: %w", err)
	}

	s.evictExpired(ctx, delta, horizon)

	incrementsTotal.Add(float64(applied))
	lateEventsTotal.Add(float64(late))
	return applied, late, nil
}

// evictExpired removes expired bucket fields of the hashtags a batch touched.
// Best effort: a failure here only delays eviction until the next batch.
func (s *RedisStore) evictExpired(ctx context.Context, delta Delta, horizon int64) {
	pipe := s.cli.Pipeline()
	evicted := 0
	for hashtag := range delta {
		fields, err := s.cli.HKeys(ctx, bucketKey(hashtag)).Result()
		if err != nil {
			return
		}
		var stale []string
		for _, f := range fields {
			if start, err := strconv.ParseInt(f, 10, 64); err == nil && start < horizon {
				stale = append(stale, f)
			}
		}
		if len(stale) > 0 {
			pipe.HDel(ctx, bucketKey(hashtag), stale...)
			evicted += len(stale)
		}
	}
	if evicted > 0 {
		if _, err := pipe.Exec(ctx); err == nil {
			evictionsTotal.Add(float64(evicted))
		}
	}
}

// ReadRange implements Store.
func (s *RedisStore) ReadRange(ctx context.Context, hashtag string, from, to time.Time) ([]Bucket, error) {
	live := s.horizonStart(s.nowFn())
	if from.Before(live) {
		from = live
	}

	fields, err := s.cli.HGetAll(ctx, bucketKey(hashtag)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read range %q: %w", hashtag, err)
	}

	buckets := parseBucketFields(fields, from.Unix(), to.Unix())
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Start.Before(buckets[j].Start) })
	return buckets, nil
}

// ReadAllActive implements Store.
func (s *RedisStore) ReadAllActive(ctx context.Context, asOf time.Time) (map[string]int64, error) {
	horizon := trending.WindowStart(asOf, s.retention, s.width).Unix()

	hashtags, err := s.cli.SMembers(ctx, tagIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list hashtags: %w", err)
	}

	pipe := s.cli.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(hashtags))
	for i, hashtag := range hashtags {
		cmds[i] = pipe.HGetAll(ctx, bucketKey(hashtag))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis read all active: %w", err)
	}

	totals := make(map[string]int64, len(hashtags))
	for i, hashtag := range hashtags {
		var sum int64
		for _, b := range parseBucketFields(cmds[i].Val(), horizon, int64(1)<<62) {
			sum += b.Count
		}
		if sum > 0 {
			totals[hashtag] = sum
		}
	}
	return totals, nil
}

// Stats implements Store.
func (s *RedisStore) Stats(ctx context.Context, asOf time.Time) (Stats, error) {
	horizon := trending.WindowStart(asOf, s.retention, s.width).Unix()

	hashtags, err := s.cli.SMembers(ctx, tagIndexKey).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("redis stats: %w", err)
	}

	pipe := s.cli.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(hashtags))
	for i, hashtag := range hashtags {
		cmds[i] = pipe.HGetAll(ctx, bucketKey(hashtag))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Stats{}, fmt.Errorf("redis stats: %w", err)
	}

	var st Stats
	oldest := int64(0)
	for i, hashtag := range hashtags {
		live := parseBucketFields(cmds[i].Val(), horizon, int64(1)<<62)
		if len(live) == 0 {
			continue
		}
		st.Hashtags++
		st.Buckets += len(live)
		st.ApproxBytes += bytesPerSeries + int64(len(hashtag)) + int64(len(live))*bytesPerBucket
		for _, b := range live {
			if start := b.Start.Unix(); oldest == 0 || start < oldest {
				oldest = start
			}
		}
	}
	if oldest != 0 {
		st.OldestBucketAge = asOf.Sub(time.Unix(oldest, 0).UTC())
	}
	return st, nil
}

func formatBucketField(start int64) string {
	return strconv.FormatInt(start, 10)
}

// parseBucketFields decodes hash fields into buckets with start in [from, to),
// skipping anything unparsable or zero.
func parseBucketFields(fields map[string]string, from, to int64) []Bucket {
	buckets := make([]Bucket, 0, len(fields))
	for field, value := range fields {
		start, err := strconv.ParseInt(field, 10, 64)
		if err != nil || start < from || start >= to {
			continue
		}
		count, err := strconv.ParseInt(value, 10, 64)
		if err != nil || count <= 0 {
			continue
		}
		buckets = append(buckets, Bucket{Start: time.Unix(start, 0).UTC(), Count: count})
	}
	return buckets
}
