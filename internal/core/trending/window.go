package trending

import (
	"time"
)

// BucketFor truncates a timestamp to the nearest bucket boundary.
// This is the atomic unit of trending storage.
// Example: BucketFor(10:35:42, 60*time.Second) → 10:35:00
func BucketFor(t time.Time, width time.Duration) time.Time {
	return t.Truncate(width)
}

// WindowStart computes the inclusive lower bound of a trailing window,
// aligned down to the bucket grid. A bucket that only partially overlaps
// the requested span is counted whole: the window [asOf-W, asOf) covers
// every bucket whose start falls in [BucketFor(asOf-W), asOf).
func WindowStart(asOf time.Time, window, width time.Duration) time.Time {
	return BucketFor(asOf.Add(-window), width)
}
