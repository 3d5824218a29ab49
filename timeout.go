package smithy

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	operationTimeoutScope = "operation"
	attemptTimeoutScope   = "attempt"
)

// TimeoutConfig bounds how long an invocation may run. A zero duration
// disables that timeout.
type TimeoutConfig struct {
	// OperationTimeout bounds the whole invocation, retries included.
	OperationTimeout time.Duration
	// OperationAttemptTimeout bounds each attempt.
	OperationAttemptTimeout time.Duration
	// ConnectTimeout and ReadTimeout are applied by the default HTTP connector.
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// DefaultTimeoutConfig has no operation or attempt timeout and a short
// connect timeout.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{ConnectTimeout: 3100 * time.Millisecond}
}

// Validate rejects negative durations.
func (c TimeoutConfig) Validate() error {
	for name, d := range map[string]time.Duration{
		"operation timeout":         c.OperationTimeout,
		"operation attempt timeout": c.OperationAttemptTimeout,
		"connect timeout":           c.ConnectTimeout,
		"read timeout":              c.ReadTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s cannot be negative, got %v", name, d)
		}
	}
	return nil
}

// withTimeout derives a context that is cancelled with a *TimeoutError once
// sleeper has slept for d. The sleeper is the only clock consulted, so a
// test sleeper controls exactly when the timeout fires.
func withTimeout(parent context.Context, sleeper Sleeper, d time.Duration, scope string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	if d <= 0 {
		return ctx, func() { cancel(nil) }
	}
	go func() {
		if sleeper.Sleep(ctx, d) == nil {
			cancel(&TimeoutError{Scope: scope, Timeout: d})
		}
	}()
	return ctx, func() { cancel(nil) }
}

// timeoutCause returns the *TimeoutError that cancelled ctx, if any.
func timeoutCause(ctx context.Context) *TimeoutError {
	if ctx.Err() == nil {
		return nil
	}
	var te *TimeoutError
	if errors.As(context.Cause(ctx), &te) {
		return te
	}
	return nil
}
