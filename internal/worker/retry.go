package worker

import (
	"math"
	"time"
)

// RetryPolicy is the exponential backoff shared by the mirror queue and reminder dispatch.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// NextDelay returns the wait before attempt (1-based), clamped to MaxDelay.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	attempt = max(attempt, 1)
	initial := r.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2
	}

	d := time.Duration(float64(initial) * math.Pow(factor, float64(attempt-1)))
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}

// NextAttempt schedules the retry after the given failed attempt.
// ok is false once MaxRetries attempts have been spent.
func (r RetryPolicy) NextAttempt(now time.Time, attempt int) (next time.Time, ok bool) {
	if attempt >= r.MaxRetries {
		return time.Time{}, false
	}
	return now.Add(r.NextDelay(attempt)), true
}
