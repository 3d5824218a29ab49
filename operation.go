package smithy

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// OperationBuilder assembles a typed operation from a serializer, a
// deserializer and the runtime components it should run with.
type OperationBuilder[I, O any] struct {
	service      string
	operation    string
	client       *Client
	components   *RuntimeComponentsBuilder
	layer        *Layer
	plugins      []RuntimePlugin
	serializer   func(I, *ConfigBag) (*http.Request, error)
	deserializer func(*http.Response, []byte) (O, error)
	adaptive     bool
}

// NewOperationBuilder returns an empty builder.
func NewOperationBuilder[I, O any]() *OperationBuilder[I, O] {
	return &OperationBuilder[I, O]{
		components: NewRuntimeComponentsBuilder("operation"),
		layer:      NewLayer("operation"),
	}
}

func (b *OperationBuilder[I, O]) ServiceName(name string) *OperationBuilder[I, O] {
	b.service = name
	return b
}

func (b *OperationBuilder[I, O]) OperationName(name string) *OperationBuilder[I, O] {
	b.operation = name
	return b
}

func (b *OperationBuilder[I, O]) HTTPConnector(c HTTPConnector) *OperationBuilder[I, O] {
	b.components.SetHTTPConnector(c)
	return b
}

func (b *OperationBuilder[I, O]) EndpointURL(uri string) *OperationBuilder[I, O] {
	b.components.SetEndpointResolver(NewStaticURIEndpointResolver(uri))
	return b
}

// NoAuth sends the operation unsigned.
func (b *OperationBuilder[I, O]) NoAuth() *OperationBuilder[I, O] {
	b.components.
		SetAuthSchemeOptionResolver(NewStaticAuthSchemeOptionResolver(NoAuthSchemeID)).
		AddAuthScheme(NoAuthScheme()).
		AddIdentityResolver(NoAuthSchemeID, NoAuthIdentityResolver{})
	return b
}

// NoRetry sends the operation once.
func (b *OperationBuilder[I, O]) NoRetry() *OperationBuilder[I, O] {
	b.components.SetRetryStrategy(NeverRetryStrategy{})
	return b
}

// StandardRetry retries with the standard strategy. Adaptive mode gives the
// operation its own client rate limiter.
func (b *OperationBuilder[I, O]) StandardRetry(cfg RetryConfig) *OperationBuilder[I, O] {
	b.components.SetRetryStrategy(NewStandardRetryStrategy(cfg, nil))
	StorePut(b.layer, cfg)
	b.adaptive = cfg.Mode == RetryModeAdaptive
	return b
}

func (b *OperationBuilder[I, O]) RetryClassifiers(classifiers ...ClassifyRetry) *OperationBuilder[I, O] {
	for _, c := range classifiers {
		b.components.AddRetryClassifier(c)
	}
	return b
}

func (b *OperationBuilder[I, O]) SleepImpl(s Sleeper) *OperationBuilder[I, O] {
	b.components.SetSleeper(s)
	return b
}

func (b *OperationBuilder[I, O]) TimeSource(ts TimeSource) *OperationBuilder[I, O] {
	b.components.SetTimeSource(ts)
	return b
}

func (b *OperationBuilder[I, O]) Timeouts(cfg TimeoutConfig) *OperationBuilder[I, O] {
	StorePut(b.layer, cfg)
	return b
}

func (b *OperationBuilder[I, O]) Interceptor(i Interceptor) *OperationBuilder[I, O] {
	b.components.AddInterceptor(i)
	return b
}

func (b *OperationBuilder[I, O]) RuntimePlugin(p RuntimePlugin) *OperationBuilder[I, O] {
	b.plugins = append(b.plugins, p)
	return b
}

// Client runs the operation with c's client plugins.
func (b *OperationBuilder[I, O]) Client(c *Client) *OperationBuilder[I, O] {
	b.client = c
	if b.service == "" {
		b.service = c.ServiceName()
	}
	return b
}

// Config stores a value in the operation's config layer.
func (b *OperationBuilder[I, O]) Config(fn func(*Layer)) *OperationBuilder[I, O] {
	fn(b.layer)
	return b
}

func (b *OperationBuilder[I, O]) Serializer(fn func(I, *ConfigBag) (*http.Request, error)) *OperationBuilder[I, O] {
	b.serializer = fn
	return b
}

func (b *OperationBuilder[I, O]) Deserializer(fn func(*http.Response, []byte) (O, error)) *OperationBuilder[I, O] {
	b.deserializer = fn
	return b
}

// Build checks that the operation can be invoked.
func (b *OperationBuilder[I, O]) Build() (*Operation[I, O], error) {
	var errs []error
	if b.service == "" {
		errs = append(errs, errors.New("service name is required"))
	}
	if b.operation == "" {
		errs = append(errs, errors.New("operation name is required"))
	}
	if b.serializer == nil {
		errs = append(errs, errors.New("a request serializer is required"))
	}
	if b.deserializer == nil {
		errs = append(errs, errors.New("a response deserializer is required"))
	}
	if len(errs) > 0 {
		return nil, &ClientError{
			Type:      ErrorTypeConstructionFailure,
			Message:   "operation is incomplete",
			Cause:     errors.Join(errs...),
			Service:   b.service,
			Operation: b.operation,
			Timestamp: time.Now(),
		}
	}

	serialize, deserialize := b.serializer, b.deserializer
	layer := b.layer.clone()
	StorePut[RequestSerializer](layer, RequestSerializerFunc(func(input TypeErasedBox, cfg *ConfigBag) (*http.Request, error) {
		return serialize(Downcast[I](input), cfg)
	}))
	StorePut[ResponseDeserializer](layer, ResponseDeserializerFunc(func(resp *http.Response, body []byte) (TypeErasedBox, error) {
		out, err := deserialize(resp, body)
		if err != nil {
			return TypeErasedBox{}, err
		}
		return Erase(out), nil
	}))

	op := &Operation[I, O]{service: b.service, operation: b.operation, client: b.client}
	if b.client == nil {
		op.clientPlugins = []RuntimePlugin{DefaultsPlugin()}
	}
	op.operationPlugins = append(op.operationPlugins,
		NewStaticRuntimePlugin().WithConfig(layer.Freeze()).WithRuntimeComponents(b.components.MergeFrom(nil)))
	if b.adaptive {
		op.operationPlugins = append(op.operationPlugins, NewClientRateLimiterPlugin(NewClientRateLimiter(time.Now())))
	}
	op.operationPlugins = append(op.operationPlugins, b.plugins...)
	return op, nil
}

// Operation is a built, typed operation. It is safe for concurrent use.
type Operation[I, O any] struct {
	service          string
	operation        string
	client           *Client
	clientPlugins    []RuntimePlugin
	operationPlugins []RuntimePlugin
}

// RuntimePlugins returns the plugins one invocation runs with.
func (op *Operation[I, O]) RuntimePlugins() *RuntimePlugins {
	plugins := NewRuntimePlugins()
	if op.client != nil {
		plugins = op.client.RuntimePlugins()
	}
	for _, p := range op.clientPlugins {
		plugins = plugins.WithClientPlugin(p)
	}
	for _, p := range op.operationPlugins {
		plugins = plugins.WithOperationPlugin(p)
	}
	return plugins
}

// Invoke runs the operation for input.
func (op *Operation[I, O]) Invoke(ctx context.Context, input I) (O, error) {
	var zero O
	if op.client != nil && op.client.validationError != nil {
		return zero, op.client.validationError
	}
	out, err := Invoke(ctx, op.service, op.operation, Erase(input), op.RuntimePlugins())
	if err != nil {
		return zero, err
	}
	return Downcast[O](out), nil
}
