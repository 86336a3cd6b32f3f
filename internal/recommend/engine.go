// Package recommend suggests hashtags by co-occurrence: tags that appear on
// the same posts as a target tag, ranked by how often they do.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tagpulse-lab/tagpulse/internal/core/storage"
	core "github.com/tagpulse-lab/tagpulse/internal/core/trending"
)

// ErrInvalidQuery marks a recommendation request with out-of-range parameters.
var ErrInvalidQuery = errors.New("invalid recommendation query")

const (
	defaultMinRate    = 0.3
	defaultMaxResults = 3
	ratePrecision     = 4
)

// Options controls the co-occurrence query.
type Options struct {
	// Horizon bounds how far back co-occurrence looks. Zero means all time.
	Horizon      time.Duration
	MinRate      float64
	MaxResults   int
	QueryTimeout time.Duration
	NowFn        func() time.Time
}

func (o Options) normalized() Options {
	n := o
	if n.MinRate <= 0 {
		n.MinRate = defaultMinRate
	}
	if n.MaxResults <= 0 {
		n.MaxResults = defaultMaxResults
	}
	if n.NowFn == nil {
		n.NowFn = func() time.Time { return time.Now().UTC() }
	}
	return n
}

// Engine computes co-occurrence recommendations straight from the persistent
// log. Recommendation traffic is low-volume compared to trending queries, so
// it reads the database directly instead of the bucket cache.
type Engine struct {
	source storage.EventSource
	opts   Options
}

// New creates a recommendation engine over the given event source.
func New(source storage.EventSource, opts Options) *Engine {
	return &Engine{source: source, opts: opts.normalized()}
}

// Recommend returns hashtags co-occurring with target, ranked by rate
// descending (name ascending on ties). rate is co-occurrence count divided by
// the number of posts containing target, so it always lies in [0, 1].
// A negative minRate and a max <= 0 fall back to the configured defaults; an
// explicit minRate of 0 disables the threshold and returns every co-occurring
// hashtag. An unknown target yields an empty result, not an error.
func (e *Engine) Recommend(ctx context.Context, target string, minRate float64, max int) ([]core.Recommendation, error) {
	tag, err := core.NormalizeHashtag(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	if minRate < 0 {
		minRate = e.opts.MinRate
	}
	if minRate > 1 {
		return nil, fmt.Errorf("%w: min_rate %v out of range [0, 1]", ErrInvalidQuery, minRate)
	}
	if max <= 0 {
		max = e.opts.MaxResults
	}

	if e.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.QueryTimeout)
		defer cancel()
	}

	var since time.Time
	if e.opts.Horizon > 0 {
		since = e.opts.NowFn().Add(-e.opts.Horizon)
	}

	posts, err := e.source.ListPostsContaining(ctx, tag, since)
	if err != nil {
		return nil, fmt.Errorf("list posts containing %q: %w", tag, err)
	}
	if len(posts) == 0 {
		return []core.Recommendation{}, nil
	}

	// Count each co-tag at most once per post, regardless of how the rows
	// came back.
	coCounts := make(map[string]int64)
	for _, post := range posts {
		seen := make(map[string]struct{}, len(post.Hashtags))
		for _, raw := range post.Hashtags {
			other, err := core.NormalizeHashtag(raw)
			if err != nil || other == tag {
				continue
			}
			if _, dup := seen[other]; dup {
				continue
			}
			seen[other] = struct{}{}
			coCounts[other]++
		}
	}

	total := decimal.NewFromInt(int64(len(posts)))
	recs := make([]core.Recommendation, 0, len(coCounts))
	for other, count := range coCounts {
		rate, _ := decimal.NewFromInt(count).Div(total).Round(ratePrecision).Float64()
		if rate < minRate {
			continue
		}
		recs = append(recs, core.Recommendation{Hashtag: other, Rate: rate})
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Rate != recs[j].Rate {
			return recs[i].Rate > recs[j].Rate
		}
		return recs[i].Hashtag < recs[j].Hashtag
	})
	if len(recs) > max {
		recs = recs[:max]
	}

	recommendationQueriesTotal.Inc()
	slog.Debug("[Recommend] Query complete",
		"hashtag", tag, "posts", len(posts), "candidates", len(coCounts), "returned", len(recs))

	return recs, nil
}
