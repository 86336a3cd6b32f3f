package trending

import (
	"time"

	core "github.com/tagpulse-lab/tagpulse/internal/core/trending"
)

// TrendingResponse is the body of GET /v1/hashtags/trending.
type TrendingResponse struct {
	Hashtags      []core.TrendingCount `json:"hashtags"`
	WindowMinutes int                  `json:"window_minutes"`
	TotalCount    int                  `json:"total_count"`
	Stale         bool                 `json:"stale"`
}

// StatusResponse is the body of GET /v1/hashtags/status.
type StatusResponse struct {
	TotalHashtags          int        `json:"total_hashtags"`
	TotalBuckets           int        `json:"total_buckets"`
	ApproxCacheBytes       int64      `json:"approx_cache_bytes"`
	OldestBucketAgeSeconds int64      `json:"oldest_bucket_age_seconds"`
	BucketWidthSeconds     int64      `json:"bucket_width_seconds"`
	RetentionSeconds       int64      `json:"retention_seconds"`
	Cursor                 *time.Time `json:"cursor,omitempty"`
	LastSyncAt             *time.Time `json:"last_sync_at,omitempty"`
}
