package backoff

import (
	"time"
)

// Calculator applies a Strategy. Retry strategies hold one so the algorithm can
// be swapped without touching the retry loop.
type Calculator struct {
	strategy Strategy
}

// NewCalculator returns a calculator using strategy.
func NewCalculator(strategy Strategy) *Calculator {
	return &Calculator{strategy: strategy}
}

// Calculate returns the delay before retry number attempt, counted from 0.
func (c *Calculator) Calculate(attempt int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) time.Duration {
	return c.strategy.Calculate(attempt, initialBackoff, maxBackoff, multiplier, jitter)
}

// Strategy returns the strategy in use.
func (c *Calculator) Strategy() Strategy {
	return c.strategy
}

// FullJitter returns a calculator for the standard retry mode.
func FullJitter() *Calculator {
	return NewCalculator(FullJitterStrategy{})
}
