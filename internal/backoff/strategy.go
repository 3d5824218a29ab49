// Package backoff computes retry delays.
package backoff

import (
	"math/rand/v2"
	"time"
)

// maxExponent bounds the exponent so delays cannot overflow time.Duration.
const maxExponent = 30

// Strategy computes the delay before retry number attempt, counted from 0.
type Strategy interface {
	Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) time.Duration
}

// FullJitterStrategy picks uniformly from [0, min(max, initial*multiplier^attempt)).
// A jitter of 0 disables the randomization and returns the upper bound.
type FullJitterStrategy struct {
	// Rand returns a value in [0, 1). Nil uses math/rand/v2.
	Rand func() float64
}

func (s FullJitterStrategy) Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) time.Duration {
	upper := capped(float64(initialBackoff)*Pow(multiplier, clampAttempt(attempt)), maxBackoff)
	if clampJitter(jitter) == 0 {
		return upper
	}
	return time.Duration(float64(upper) * random(s.Rand))
}

func capped(d float64, maxBackoff time.Duration) time.Duration {
	out := time.Duration(d)
	if out < 0 || out > maxBackoff {
		return maxBackoff
	}
	return out
}

func clampAttempt(attempt int) int {
	if attempt < 0 {
		return 0
	}
	if attempt > maxExponent {
		return maxExponent
	}
	return attempt
}

func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

func random(fn func() float64) float64 {
	if fn != nil {
		return fn()
	}
	return rand.Float64()
}

// Pow returns base^exponent for a non-negative integer exponent.
func Pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
