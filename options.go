package smithy

import (
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Option configures a Client.
type Option func(*Client)

// WithServiceName sets the service name used in metrics, logs and errors
func WithServiceName(name string) Option {
	return func(c *Client) {
		c.serviceName = name
	}
}

// WithHTTPClient sends requests with client instead of a default transport
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithHTTPConnector sets the connector used to send requests
func WithHTTPConnector(connector HTTPConnector) Option {
	return func(c *Client) {
		c.connector = connector
	}
}

// WithEndpointURL sends every request to uri
func WithEndpointURL(uri string) Option {
	return func(c *Client) {
		c.endpoint = NewStaticURIEndpointResolver(uri)
	}
}

// WithEndpointResolver sets the endpoint resolver
func WithEndpointResolver(r EndpointResolver) Option {
	return func(c *Client) {
		c.endpoint = r
	}
}

// WithRetryConfig replaces the retry configuration
func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
		c.retryEnabled = true
	}
}

// WithMaxAttempts sets the maximum number of attempts, the first included
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		c.retry.MaxAttempts = n
	}
}

// WithRetryMode selects standard or adaptive retries
func WithRetryMode(mode RetryMode) Option {
	return func(c *Client) {
		c.retry.Mode = mode
	}
}

// WithInitialBackoff sets the initial backoff duration
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.retry.InitialBackoff = d
	}
}

// WithMaxBackoff sets the maximum backoff duration
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.retry.MaxBackoff = d
	}
}

// WithoutRetries sends every operation exactly once
func WithoutRetries() Option {
	return func(c *Client) {
		c.retryEnabled = false
	}
}

// WithRetryClassifiers replaces the default retry classifiers
func WithRetryClassifiers(classifiers ...ClassifyRetry) Option {
	return func(c *Client) {
		c.classifiers = classifiers
	}
}

// WithTimeoutConfig replaces the timeout configuration
func WithTimeoutConfig(cfg TimeoutConfig) Option {
	return func(c *Client) {
		c.timeouts = cfg
	}
}

// WithOperationTimeout bounds each invocation, retries included
func WithOperationTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeouts.OperationTimeout = d
	}
}

// WithAttemptTimeout bounds each attempt
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeouts.OperationAttemptTimeout = d
	}
}

// WithIdentityCache replaces the default lazy identity cache
func WithIdentityCache(cache IdentityCache) Option {
	return func(c *Client) {
		c.identityCache = cache
	}
}

// WithAuthScheme registers an auth scheme
func WithAuthScheme(scheme AuthScheme) Option {
	return func(c *Client) {
		c.authSchemes = append(c.authSchemes, scheme)
	}
}

// WithIdentityResolver registers r for scheme id. The resolver gets one cache
// partition for the lifetime of the client.
func WithIdentityResolver(id AuthSchemeID, r IdentityResolver) Option {
	return func(c *Client) {
		shared, ok := r.(*SharedIdentityResolver)
		if !ok {
			shared = NewSharedIdentityResolver(r)
		}
		c.identities = append(c.identities, configuredIdentityResolver{schemeID: id, resolver: shared})
	}
}

// WithAuthSchemePreference sets the auth options tried, in order
func WithAuthSchemePreference(ids ...AuthSchemeID) Option {
	return func(c *Client) {
		c.authOptions = ids
	}
}

// WithTimeSource sets the clock
func WithTimeSource(ts TimeSource) Option {
	return func(c *Client) {
		c.timeSource = ts
	}
}

// WithSleeper sets the sleep implementation used for backoff and timeouts
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		c.sleeper = s
	}
}

// WithMetrics enables metrics on the default Prometheus registerer
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithLogger sets the logger
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithZapLogger logs through l
func WithZapLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = NewZapLogger(l)
	}
}

// WithDebug enables the default debug logging categories
func WithDebug() Option {
	return func(c *Client) {
		c.debug = DefaultDebugConfig()
	}
}

// WithDebugConfig sets custom debug configuration
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithTracerProvider records one span per invocation with tp
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracerProvider = tp
	}
}

// WithInvocationIDGenerator replaces the UUID invocation ID generator
func WithInvocationIDGenerator(gen InvocationIDGenerator) Option {
	return func(c *Client) {
		c.invocationIDs = gen
	}
}

// WithInterceptor adds a client interceptor. Client interceptors run before
// operation interceptors.
func WithInterceptor(i Interceptor) Option {
	return func(c *Client) {
		c.interceptors = append(c.interceptors, i)
	}
}

// WithRuntimePlugin adds a client-level runtime plugin
func WithRuntimePlugin(p RuntimePlugin) Option {
	return func(c *Client) {
		c.plugins = append(c.plugins, p)
	}
}

// ValidateConfiguration validates the client configuration and returns an error if invalid
func (c *Client) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, c.validateRetryConfig()...)
	errors = append(errors, c.validateTimeoutConfig()...)
	errors = append(errors, c.validateAuthConfig()...)
	errors = append(errors, c.validateDebugConfig()...)
	errors = append(errors, c.validateInterceptors()...)
	errors = append(errors, c.validateExtremeValues()...)
	errors = append(errors, c.envErrors...)

	if len(errors) > 0 {
		return &ClientError{
			Type:      ErrorTypeConstructionFailure,
			Message:   "configuration validation failed",
			Cause:     fmt.Errorf("validation errors: %v", errors),
			Service:   c.serviceName,
			Timestamp: time.Now(),
		}
	}

	return nil
}

// validateRetryConfig validates retry-related configuration
func (c *Client) validateRetryConfig() []string {
	if !c.retryEnabled {
		return nil
	}
	if err := c.retry.Validate(); err != nil {
		return []string{err.Error()}
	}
	return nil
}

// validateTimeoutConfig validates timeout configuration
func (c *Client) validateTimeoutConfig() []string {
	var errors []string

	if err := c.timeouts.Validate(); err != nil {
		errors = append(errors, err.Error())
	}
	if c.timeouts.OperationTimeout > 0 && c.timeouts.OperationAttemptTimeout > c.timeouts.OperationTimeout {
		errors = append(errors, "attempt timeout must not exceed the operation timeout")
	}

	return errors
}

// validateAuthConfig checks that every preferred auth scheme can be used
func (c *Client) validateAuthConfig() []string {
	var errors []string

	for _, id := range c.authOptions {
		if id == NoAuthSchemeID {
			continue
		}
		if !c.hasAuthScheme(id) {
			errors = append(errors, fmt.Sprintf("auth scheme %q is preferred but not registered", id))
		}
		if !c.hasIdentityResolver(id) {
			errors = append(errors, fmt.Sprintf("auth scheme %q has no identity resolver", id))
		}
	}

	return errors
}

func (c *Client) hasAuthScheme(id AuthSchemeID) bool {
	for _, s := range c.authSchemes {
		if s.SchemeID() == id {
			return true
		}
	}
	return false
}

func (c *Client) hasIdentityResolver(id AuthSchemeID) bool {
	for _, r := range c.identities {
		if r.schemeID == id {
			return true
		}
	}
	return false
}

// validateDebugConfig validates debug configuration
func (c *Client) validateDebugConfig() []string {
	if c.debug != nil && c.debug.Enabled && c.logger == nil {
		return []string{"logger must be set when debug is enabled"}
	}
	return nil
}

// validateInterceptors rejects nil interceptors and plugins
func (c *Client) validateInterceptors() []string {
	var errors []string

	for i, interceptor := range c.interceptors {
		if interceptor == nil {
			errors = append(errors, fmt.Sprintf("interceptor[%d] cannot be nil", i))
		}
	}
	for i, p := range c.plugins {
		if p == nil {
			errors = append(errors, fmt.Sprintf("runtime plugin[%d] cannot be nil", i))
		}
	}
	if c.timeSource == nil {
		errors = append(errors, "time source cannot be nil")
	}
	if c.sleeper == nil {
		errors = append(errors, "sleeper cannot be nil")
	}

	return errors
}

// validateExtremeValues validates that configuration values are within reasonable bounds
func (c *Client) validateExtremeValues() []string {
	var errors []string

	if c.retry.MaxAttempts > 100 {
		errors = append(errors, "maxAttempts > 100 may cause excessive resource usage")
	}
	if c.retry.MaxBackoff > time.Hour {
		errors = append(errors, "maxBackoff > 1h may cause extremely long delays")
	}

	return errors
}
