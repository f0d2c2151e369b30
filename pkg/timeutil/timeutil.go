package timeutil

import (
	"math"
	"math/rand"
	"time"
)

// DurationPtr is a helper function to create a pointer to a time.Duration
func DurationPtr(d time.Duration) *time.Duration {
	return &d
}

// MaxDuration returns the largest duration in durations. An empty slice
// returns 0. The input slice is never mutated.
func MaxDuration(durations []time.Duration) time.Duration {
	var max time.Duration
	for i, d := range durations {
		if i == 0 || d > max {
			max = d
		}
	}
	return max
}

// ComputeJitter returns a pseudo-random duration in [0, max). A
// non-positive max always yields 0.
func ComputeJitter(max time.Duration, rng rand.Rand) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rng.Int63n(int64(max)))
}

// ExponentialBackoffDelay computes initial * multiplier^(backoffCount-1),
// capped at backoffParam.MaxDuration, plus a uniform jitter term in
// [0, jitter). backoffCount <= 0 is treated as the first backoff (same as
// backoffCount == 1) so callers never need to special-case the first
// failure.
func ExponentialBackoffDelay(backoffCount int, jitter time.Duration, rng rand.Rand, backoffParam BackoffParam) time.Duration {
	if backoffCount < 1 {
		backoffCount = 1
	}

	exponent := float64(backoffCount - 1)
	delay := float64(backoffParam.initialDuration) * math.Pow(backoffParam.multiplier, exponent)

	if maxDuration := float64(backoffParam.maxDuration); maxDuration > 0 && delay > maxDuration {
		delay = maxDuration
	}

	total := time.Duration(delay) + ComputeJitter(jitter, rng)
	if total < 0 {
		return 0
	}
	return total
}
