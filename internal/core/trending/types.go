package trending

import "time"

// TrendingCount is one entry of a ranked trending result.
type TrendingCount struct {
	Hashtag string `json:"hashtag"`
	Count   int64  `json:"count"`
}

// Recommendation is one co-occurrence recommendation: Rate is the fraction
// of posts containing the target hashtag that also contain this one.
type Recommendation struct {
	Hashtag string  `json:"hashtag"`
	Rate    float64 `json:"cooccurrence_rate"`
}

// SyncResult reports the outcome of one successful sync run.
type SyncResult struct {
	RunID            string    `json:"run_id"`
	EventsApplied    int       `json:"events_applied"`
	LateDropped      int       `json:"late_dropped"`
	CursorAdvancedTo time.Time `json:"cursor_advanced_to"`
}
