package smithy

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

func TestWithMaxAttempts(t *testing.T) {
	client := NewClient(WithMaxAttempts(5))

	if client.retry.MaxAttempts != 5 {
		t.Errorf("Expected MaxAttempts=5, got %d", client.retry.MaxAttempts)
	}
}

func TestWithInitialBackoff(t *testing.T) {
	backoff := 200 * time.Millisecond
	client := NewClient(WithInitialBackoff(backoff))

	if client.retry.InitialBackoff != backoff {
		t.Errorf("Expected InitialBackoff=%v, got %v", backoff, client.retry.InitialBackoff)
	}
}

func TestWithMaxBackoff(t *testing.T) {
	maxBackoff := 30 * time.Second
	client := NewClient(WithMaxBackoff(maxBackoff))

	if client.retry.MaxBackoff != maxBackoff {
		t.Errorf("Expected MaxBackoff=%v, got %v", maxBackoff, client.retry.MaxBackoff)
	}
}

func TestWithRetryConfig(t *testing.T) {
	cfg := RetryConfig{Mode: RetryModeAdaptive, MaxAttempts: 4, InitialBackoff: time.Millisecond, MaxBackoff: time.Second}
	client := NewClient(WithoutRetries(), WithRetryConfig(cfg))

	if client.retry != cfg {
		t.Errorf("Expected %+v, got %+v", cfg, client.retry)
	}
	if !client.retryEnabled {
		t.Error("Expected WithRetryConfig to re-enable retries")
	}
	if client.RateLimiter() == nil {
		t.Error("Expected adaptive mode to create a rate limiter")
	}
}

func TestWithTimeouts(t *testing.T) {
	client := NewClient(WithOperationTimeout(10*time.Second), WithAttemptTimeout(2*time.Second))

	if client.timeouts.OperationTimeout != 10*time.Second {
		t.Errorf("Expected OperationTimeout=10s, got %v", client.timeouts.OperationTimeout)
	}
	if client.timeouts.OperationAttemptTimeout != 2*time.Second {
		t.Errorf("Expected OperationAttemptTimeout=2s, got %v", client.timeouts.OperationAttemptTimeout)
	}
	if client.timeouts.ConnectTimeout != DefaultTimeoutConfig().ConnectTimeout {
		t.Errorf("Expected the default connect timeout to be kept, got %v", client.timeouts.ConnectTimeout)
	}
}

func TestWithHTTPClient(t *testing.T) {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	client := NewClient(WithHTTPClient(httpClient))

	connector, ok := client.connector.(*HTTPClientConnector)
	if !ok {
		t.Fatalf("Expected an HTTPClientConnector, got %T", client.connector)
	}
	if connector.client != httpClient {
		t.Error("Expected the connector to use the provided http.Client")
	}
}

func TestWithMetricsCollector(t *testing.T) {
	collector := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())
	client := NewClient(WithMetricsCollector(collector))

	if client.Metrics() != collector {
		t.Error("Expected the custom metrics collector")
	}
	if client.RetryQuota().metrics != collector {
		t.Error("Expected the retry quota to report to the collector")
	}
	if cache, ok := client.IdentityCache().(*LazyCache); !ok || cache.metrics != collector {
		t.Error("Expected the identity cache to report to the collector")
	}
}

func TestWithZapLogger(t *testing.T) {
	client := NewClient(WithZapLogger(zap.NewNop()))

	if _, ok := client.logger.(*ZapLogger); !ok {
		t.Errorf("Expected a ZapLogger, got %T", client.logger)
	}
}

func TestWithDebug(t *testing.T) {
	client := NewClient(WithDebug())

	if !client.debug.Enabled || !client.debug.LogRetries {
		t.Errorf("Expected the default debug config, got %+v", client.debug)
	}
	if client.debug.LogHooks {
		t.Error("Expected hook logging to stay off by default")
	}
}

func TestWithTracerProvider(t *testing.T) {
	client := NewClient(WithTracerProvider(noop.NewTracerProvider()))

	if client.tracerProvider == nil {
		t.Error("Expected the tracer provider to be set")
	}
}

func TestWithAuthSchemePreference(t *testing.T) {
	const scheme AuthSchemeID = "test-token"
	client := NewClient(
		WithAuthScheme(NewAuthScheme(scheme, NoAuthScheme().Signer())),
		WithIdentityResolver(scheme, NoAuthIdentityResolver{}),
		WithAuthSchemePreference(scheme, NoAuthSchemeID),
	)

	if !client.IsValid() {
		t.Fatalf("Expected a valid client, got %v", client.ValidationError())
	}
	if len(client.authOptions) != 2 || client.authOptions[0] != scheme {
		t.Errorf("Expected [%s %s], got %v", scheme, NoAuthSchemeID, client.authOptions)
	}
}

func TestValidateConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		options []Option
		message string
	}{
		{"zero attempts", []Option{WithMaxAttempts(0)}, "max attempts must be at least 1"},
		{"unknown mode", []Option{WithRetryMode("legacy")}, "retry mode"},
		{"backoff order", []Option{WithInitialBackoff(time.Minute), WithMaxBackoff(time.Second)}, "less than initial backoff"},
		{"negative timeout", []Option{WithOperationTimeout(-time.Second)}, "operation timeout cannot be negative"},
		{"attempt beyond operation", []Option{WithOperationTimeout(time.Second), WithAttemptTimeout(time.Minute)}, "attempt timeout must not exceed"},
		{"unregistered scheme", []Option{WithAuthSchemePreference("sigv9")}, `auth scheme "sigv9" is preferred but not registered`},
		{"missing resolver", []Option{WithAuthScheme(NewAuthScheme("sigv9", NoAuthScheme().Signer())), WithAuthSchemePreference("sigv9")}, `auth scheme "sigv9" has no identity resolver`},
		{"debug without logger", []Option{WithLogger(nil), WithDebug()}, "logger must be set"},
		{"nil interceptor", []Option{WithInterceptor(nil)}, "interceptor[0] cannot be nil"},
		{"nil plugin", []Option{WithRuntimePlugin(nil)}, "runtime plugin[0] cannot be nil"},
		{"nil sleeper", []Option{WithSleeper(nil)}, "sleeper cannot be nil"},
		{"nil time source", []Option{WithTimeSource(nil)}, "time source cannot be nil"},
		{"extreme attempts", []Option{WithMaxAttempts(101)}, "maxAttempts > 100"},
		{"extreme backoff", []Option{WithMaxBackoff(2 * time.Hour)}, "maxBackoff > 1h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(tt.options...)
			if client.IsValid() {
				t.Fatal("Expected configuration validation to fail")
			}
			ce, ok := client.ValidationError().(*ClientError)
			if !ok {
				t.Fatalf("Expected a *ClientError, got %T", client.ValidationError())
			}
			if ce.Type != ErrorTypeConstructionFailure {
				t.Errorf("Expected %s, got %s", ErrorTypeConstructionFailure, ce.Type)
			}
			if !strings.Contains(ce.Error(), tt.message) {
				t.Errorf("Expected error to mention %q, got %v", tt.message, ce)
			}
		})
	}
}

func TestWithoutRetriesSkipsRetryValidation(t *testing.T) {
	client := NewClient(WithMaxAttempts(0), WithoutRetries())
	if !client.IsValid() {
		t.Errorf("Expected retry settings to be ignored without retries, got %v", client.ValidationError())
	}
}

func envLookup(values map[string]string) LookupEnvFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestWithEnvironment(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		retry    RetryConfig
		timeouts TimeoutConfig
		invalid  string
	}{
		{
			name:     "empty",
			env:      map[string]string{},
			retry:    DefaultRetryConfig(),
			timeouts: DefaultTimeoutConfig(),
		},
		{
			name: "all set",
			env: map[string]string{
				EnvMaxAttempts:      "5",
				EnvRetryMode:        "Adaptive",
				EnvOperationTimeout: "30s",
				EnvAttemptTimeout:   "2.5",
			},
			retry: func() RetryConfig {
				c := DefaultRetryConfig()
				c.MaxAttempts, c.Mode = 5, RetryModeAdaptive
				return c
			}(),
			timeouts: TimeoutConfig{
				OperationTimeout:        30 * time.Second,
				OperationAttemptTimeout: 2500 * time.Millisecond,
				ConnectTimeout:          DefaultTimeoutConfig().ConnectTimeout,
			},
		},
		{
			name:     "legacy mode",
			env:      map[string]string{EnvRetryMode: "legacy"},
			retry:    DefaultRetryConfig(),
			timeouts: DefaultTimeoutConfig(),
		},
		{
			name:     "bad attempts",
			env:      map[string]string{EnvMaxAttempts: "many"},
			retry:    DefaultRetryConfig(),
			timeouts: DefaultTimeoutConfig(),
			invalid:  EnvMaxAttempts,
		},
		{
			name:     "bad mode",
			env:      map[string]string{EnvRetryMode: "eager"},
			retry:    DefaultRetryConfig(),
			timeouts: DefaultTimeoutConfig(),
			invalid:  EnvRetryMode,
		},
		{
			name:     "bad timeout",
			env:      map[string]string{EnvOperationTimeout: "-3s"},
			retry:    DefaultRetryConfig(),
			timeouts: DefaultTimeoutConfig(),
			invalid:  EnvOperationTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(WithEnvironment(envLookup(tt.env)))

			if client.retry != tt.retry {
				t.Errorf("Expected retry %+v, got %+v", tt.retry, client.retry)
			}
			if client.timeouts != tt.timeouts {
				t.Errorf("Expected timeouts %+v, got %+v", tt.timeouts, client.timeouts)
			}
			if tt.invalid == "" {
				if !client.IsValid() {
					t.Errorf("Expected a valid client, got %v", client.ValidationError())
				}
				return
			}
			if client.IsValid() || !strings.Contains(client.ValidationError().Error(), tt.invalid) {
				t.Errorf("Expected validation to report %s, got %v", tt.invalid, client.ValidationError())
			}
		})
	}
}

func TestExplicitOptionsOverrideEnvironment(t *testing.T) {
	client := NewClient(
		WithEnvironment(envLookup(map[string]string{EnvMaxAttempts: "7"})),
		WithMaxAttempts(2),
	)
	if client.retry.MaxAttempts != 2 {
		t.Errorf("Expected the later option to win, got %d", client.retry.MaxAttempts)
	}
}
