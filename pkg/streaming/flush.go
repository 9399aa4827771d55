package streaming

import "time"

// shouldFlush gates UI updates so that accumulated deltas are applied at most
// once per minInterval. lastFlush starts at stream begin, so even the first
// delta waits out the interval.
func shouldFlush(lastFlush time.Time, now time.Time, minInterval time.Duration) bool {
	return now.Sub(lastFlush) >= minInterval
}
