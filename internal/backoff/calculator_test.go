package backoff

import (
	"testing"
	"time"
)

func TestCalculator(t *testing.T) {
	calc := NewCalculator(FullJitterStrategy{})

	result := calc.Calculate(1, 100*time.Millisecond, 5*time.Second, 2.0, 0.0)
	expected := 200 * time.Millisecond
	if result != expected {
		t.Errorf("Calculate(1) = %v, want %v", result, expected)
	}
}

func TestFullJitterConstructor(t *testing.T) {
	if _, ok := FullJitter().Strategy().(FullJitterStrategy); !ok {
		t.Errorf("FullJitter() returned wrong strategy type: %T", FullJitter().Strategy())
	}
}

func BenchmarkCalculatorFullJitter(b *testing.B) {
	calc := FullJitter()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		calc.Calculate(i%10, time.Second, 20*time.Second, 2.0, 1.0)
	}
}
