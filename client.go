package smithy

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// Client holds the resources shared by every operation invoked through it:
// the identity cache, the client rate limiter, the retry quota, metrics and
// logging. It is safe for concurrent use.
type Client struct {
	serviceName string

	httpClient *http.Client
	connector  HTTPConnector
	endpoint   EndpointResolver

	retry        RetryConfig
	retryEnabled bool
	classifiers  []ClassifyRetry
	timeouts     TimeoutConfig

	identityCache IdentityCache
	authOptions   []AuthSchemeID
	authSchemes   []AuthScheme
	identities    []configuredIdentityResolver

	timeSource TimeSource
	sleeper    Sleeper

	metrics        *MetricsCollector
	logger         Logger
	debug          *DebugConfig
	tracerProvider trace.TracerProvider
	invocationIDs  InvocationIDGenerator

	interceptors  []Interceptor
	plugins       []RuntimePlugin
	clientPlugins []RuntimePlugin

	rateLimiter   *ClientRateLimiter
	retryQuota    *RetryQuota
	retryStrategy RetryStrategy

	envErrors       []string
	validationError error
}

// NewClient constructs a Client using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func NewClient(options ...Option) *Client {
	client := &Client{
		retry:         DefaultRetryConfig(),
		retryEnabled:  true,
		timeouts:      DefaultTimeoutConfig(),
		timeSource:    SystemTimeSource{},
		sleeper:       TimerSleeper{},
		logger:        NopLogger(),
		debug:         &DebugConfig{},
		invocationIDs: UUIDInvocationIDGenerator{},
	}

	for _, option := range options {
		option(client)
	}

	if client.connector == nil {
		client.connector = NewHTTPClientConnector(client.httpClient, client.timeouts)
	}
	if client.identityCache == nil {
		client.identityCache = NewLazyCache(WithIdentityCacheMetrics(client.metrics))
	}
	if client.classifiers == nil {
		client.classifiers = DefaultRetryClassifiers()
	}
	client.retryQuota = NewRetryQuota(defaultRetryQuotaCapacity)
	client.retryQuota.metrics = client.metrics
	if client.retry.Mode == RetryModeAdaptive && client.timeSource != nil {
		client.rateLimiter = NewClientRateLimiter(client.timeSource.Now()).WithMetrics(client.serviceName, client.metrics)
	}
	if client.retryEnabled {
		client.retryStrategy = NewStandardRetryStrategy(client.retry, client.retryQuota)
	} else {
		client.retryStrategy = NeverRetryStrategy{}
	}

	client.clientPlugins = []RuntimePlugin{DefaultsPlugin(), client.configPlugin()}
	if client.rateLimiter != nil {
		client.clientPlugins = append(client.clientPlugins, NewClientRateLimiterPlugin(client.rateLimiter))
	}
	client.clientPlugins = append(client.clientPlugins, client.plugins...)

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// ServiceName returns the service name used in metrics, logs and errors.
func (c *Client) ServiceName() string { return c.serviceName }

// IdentityCache returns the identity cache shared by the client's operations.
func (c *Client) IdentityCache() IdentityCache { return c.identityCache }

// RateLimiter returns the client rate limiter, or nil outside adaptive mode.
func (c *Client) RateLimiter() *ClientRateLimiter { return c.rateLimiter }

// RetryQuota returns the retry quota shared by the client's operations.
func (c *Client) RetryQuota() *RetryQuota { return c.retryQuota }

// Metrics returns the metrics collector, or nil when metrics are disabled.
func (c *Client) Metrics() *MetricsCollector { return c.metrics }

// RuntimePlugins returns the client-level plugins. Operation plugins are
// added to the result by the caller.
func (c *Client) RuntimePlugins() *RuntimePlugins {
	plugins := NewRuntimePlugins()
	for _, p := range c.clientPlugins {
		plugins = plugins.WithClientPlugin(p)
	}
	return plugins
}

// Invoke runs operation with the client's plugins followed by opPlugins.
func (c *Client) Invoke(ctx context.Context, operation string, input TypeErasedBox, opPlugins ...RuntimePlugin) (TypeErasedBox, error) {
	if c.validationError != nil {
		return TypeErasedBox{}, c.validationError
	}
	plugins := c.RuntimePlugins()
	for _, p := range opPlugins {
		plugins = plugins.WithOperationPlugin(p)
	}
	return Invoke(ctx, c.serviceName, operation, input, plugins)
}

func (c *Client) configPlugin() RuntimePlugin {
	layer := NewLayer("client")
	StorePut(layer, c.retry)
	StorePut(layer, c.timeouts)
	StorePut[Logger](layer, c.logger)
	StorePut(layer, c.debug)
	StorePut[InvocationIDGenerator](layer, c.invocationIDs)
	if c.metrics != nil {
		StorePut(layer, c.metrics)
	}

	components := NewRuntimeComponentsBuilder("client").
		SetHTTPConnector(c.connector).
		SetIdentityCache(c.identityCache).
		SetRetryStrategy(c.retryStrategy).
		SetTimeSource(c.timeSource).
		SetSleeper(c.sleeper)
	if c.endpoint != nil {
		components.SetEndpointResolver(c.endpoint)
	}
	if len(c.authOptions) > 0 {
		components.SetAuthSchemeOptionResolver(NewStaticAuthSchemeOptionResolver(c.authOptions...))
	}
	for _, s := range c.authSchemes {
		components.AddAuthScheme(s)
	}
	for _, r := range c.identities {
		components.AddIdentityResolver(r.schemeID, r.resolver)
	}
	for _, cl := range c.classifiers {
		components.AddRetryClassifier(cl)
	}
	if c.metrics != nil {
		components.AddInterceptor(NewMetricsInterceptor(c.metrics))
	}
	if c.tracerProvider != nil {
		components.AddInterceptor(NewTracingInterceptor(c.tracerProvider))
	}
	for _, i := range c.interceptors {
		components.AddInterceptor(i)
	}

	return NewStaticRuntimePlugin().
		WithConfig(layer.Freeze()).
		WithRuntimeComponents(components)
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// String summarizes the client configuration for debugging.
func (c *Client) String() string {
	return fmt.Sprintf("Client{service=%q retry=%s/%d adaptive=%t}",
		c.serviceName, c.retry.Mode, c.retry.MaxAttempts, c.rateLimiter != nil)
}
