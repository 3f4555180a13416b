// Package backoff provides exponential backoff calculation.
package backoff

import (
	"math"
	"time"
)

// Exponential calculates exponential backoff for a given attempt.
// Attempt 1 returns initial, attempt 2 returns initial*2, capped at max.
// Non-positive initial or max fall back to 100ms and 5s.
func Exponential(attempt int, initial, max time.Duration) time.Duration {
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	if max <= 0 {
		max = 5 * time.Second
	}

	if attempt < 1 {
		return initial
	}
	d := float64(initial) * math.Pow(2.0, float64(attempt-1))
	if d > float64(max) {
		d = float64(max)
	}
	return time.Duration(d)
}
