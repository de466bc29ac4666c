package governor

import "time"

// Backoff is the retry policy for transient provider failures.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	MaxRetries int
}

// Delay returns the wait before retry number attempt (starting at 0):
// Initial doubled attempt times, capped at Max when Max is set.
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// ShouldRetry reports whether another retry is allowed after attempt failed retries.
func (b Backoff) ShouldRetry(attempt int) bool {
	return attempt < b.MaxRetries
}
