package backoff

import (
	"testing"
	"time"
)

func TestFullJitterStrategyCaps(t *testing.T) {
	tests := []struct {
		name     string
		attempt  int
		max      time.Duration
		expected time.Duration
	}{
		{name: "attempt 0", attempt: 0, max: 5 * time.Second, expected: 100 * time.Millisecond},
		{name: "attempt 2", attempt: 2, max: 5 * time.Second, expected: 400 * time.Millisecond},
		{name: "capped", attempt: 10, max: time.Second, expected: time.Second},
		{name: "negative attempt", attempt: -3, max: time.Second, expected: 100 * time.Millisecond},
		{name: "overflowing attempt", attempt: 500, max: time.Minute, expected: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FullJitterStrategy{}.Calculate(tt.attempt, 100*time.Millisecond, tt.max, 2.0, 0.0)
			if result != tt.expected {
				t.Errorf("Calculate(%d) = %v, want %v", tt.attempt, result, tt.expected)
			}
		})
	}
}

func TestFullJitterStrategy(t *testing.T) {
	strategy := FullJitterStrategy{Rand: func() float64 { return 0.25 }}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 250 * time.Millisecond},
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{6, 5 * time.Second},
	}

	for _, tt := range tests {
		result := strategy.Calculate(tt.attempt, time.Second, 20*time.Second, 2.0, 1.0)
		if result != tt.expected {
			t.Errorf("Calculate(%d) = %v, want %v", tt.attempt, result, tt.expected)
		}
	}
}

func TestFullJitterStrategyWithoutJitter(t *testing.T) {
	strategy := FullJitterStrategy{Rand: func() float64 { t.Fatal("random source used with jitter disabled"); return 0 }}

	if result := strategy.Calculate(3, time.Second, 20*time.Second, 2.0, 0); result != 8*time.Second {
		t.Errorf("Expected 8s, got %v", result)
	}
}

func TestClampJitter(t *testing.T) {
	tests := []struct {
		input    float64
		expected float64
	}{
		{-0.5, 0.0},
		{0.0, 0.0},
		{0.5, 0.5},
		{1.0, 1.0},
		{1.5, 1.0},
	}

	for _, tt := range tests {
		result := clampJitter(tt.input)
		if result != tt.expected {
			t.Errorf("clampJitter(%f) = %f, want %f", tt.input, result, tt.expected)
		}
	}
}

func TestPow(t *testing.T) {
	tests := []struct {
		base     float64
		exponent int
		expected float64
	}{
		{2.0, 0, 1.0},
		{2.0, 1, 2.0},
		{2.0, 3, 8.0},
		{3.0, 2, 9.0},
	}

	for _, tt := range tests {
		result := Pow(tt.base, tt.exponent)
		if result != tt.expected {
			t.Errorf("Pow(%f, %d) = %f, want %f", tt.base, tt.exponent, result, tt.expected)
		}
	}
}

func BenchmarkFullJitterStrategy(b *testing.B) {
	strategy := FullJitterStrategy{}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		strategy.Calculate(i%10, 100*time.Millisecond, 5*time.Second, 2.0, 1.0)
	}
}
