package aggregate

import "time"

// bucketKey computes the UTC-safe, timezone-free bucket key for a unix
// timestamp and a period width in seconds: ts_s - (ts_s mod P). Using
// Unix() and plain integer arithmetic means the result is identical
// regardless of the process's local time zone.
func bucketKey(tsSeconds int64, period int64) int64 {
	mod := tsSeconds % period
	if mod < 0 {
		mod += period
	}
	return tsSeconds - mod
}

// bucketStart converts a bucket key back to a UTC instant.
func bucketStart(key int64) time.Time {
	return time.Unix(key, 0).UTC()
}
