package storage

import (
	"context"
	"time"
)

// HashtagEvent is one hashtag usage: post PostID used Hashtag at OccurredAt.
// A post with three hashtags yields three events sharing the same PostID.
type HashtagEvent struct {
	PostID     int64
	Hashtag    string
	OccurredAt time.Time
}

// PostHashtags is a post together with its full set of attached hashtags.
type PostHashtags struct {
	PostID   int64
	Hashtags []string
}

// EventSource is the authoritative persistent log of hashtag usage.
// The trending engine only ever reads from it; the tables are written by
// the CRUD side of the system.
type EventSource interface {
	// ListHashtagEvents returns all usages with occurred_at in (since, until],
	// ordered by occurred_at ascending (post id as tiebreak for a stable order).
	ListHashtagEvents(ctx context.Context, since, until time.Time) ([]HashtagEvent, error)

	// ListPostsContaining returns every post containing hashtag, each with its
	// full hashtag set. A zero since means no lower bound (all time).
	ListPostsContaining(ctx context.Context, hashtag string, since time.Time) ([]PostHashtags, error)
}
