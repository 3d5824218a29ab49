package smithy

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables read by WithEnvironment.
const (
	EnvMaxAttempts      = "AWS_MAX_ATTEMPTS"
	EnvRetryMode        = "AWS_RETRY_MODE"
	EnvOperationTimeout = "SMITHY_OPERATION_TIMEOUT"
	EnvAttemptTimeout   = "SMITHY_ATTEMPT_TIMEOUT"
)

// LookupEnvFunc looks up an environment variable.
type LookupEnvFunc func(key string) (string, bool)

// WithEnvironment applies retry and timeout settings from the environment.
// A nil lookup reads the process environment. Timeouts accept Go durations
// ("2s") or a number of seconds ("2.5"). Invalid values are reported by
// ValidateConfiguration.
func WithEnvironment(lookup LookupEnvFunc) Option {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return func(c *Client) {
		if v, ok := lookup(EnvMaxAttempts); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil || n < 1 {
				c.envErrors = append(c.envErrors, fmt.Sprintf("%s=%q is not a positive integer", EnvMaxAttempts, v))
			} else {
				c.retry.MaxAttempts = n
			}
		}
		if v, ok := lookup(EnvRetryMode); ok {
			switch mode := RetryMode(strings.ToLower(strings.TrimSpace(v))); mode {
			case RetryModeStandard, RetryModeAdaptive:
				c.retry.Mode = mode
			case "legacy":
				c.retry.Mode = RetryModeStandard
			default:
				c.envErrors = append(c.envErrors, fmt.Sprintf("%s=%q is not one of standard, adaptive", EnvRetryMode, v))
			}
		}
		if v, ok := lookup(EnvOperationTimeout); ok {
			if d, err := parseEnvDuration(v); err != nil {
				c.envErrors = append(c.envErrors, fmt.Sprintf("%s: %v", EnvOperationTimeout, err))
			} else {
				c.timeouts.OperationTimeout = d
			}
		}
		if v, ok := lookup(EnvAttemptTimeout); ok {
			if d, err := parseEnvDuration(v); err != nil {
				c.envErrors = append(c.envErrors, fmt.Sprintf("%s: %v", EnvAttemptTimeout, err))
			} else {
				c.timeouts.OperationAttemptTimeout = d
			}
		}
	}
}

func parseEnvDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if d, err := time.ParseDuration(v); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("%q is negative", v)
		}
		return d, nil
	}
	seconds, err := strconv.ParseFloat(v, 64)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("%q is not a duration", v)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
