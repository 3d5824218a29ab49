package smithy

// DefaultsPlugin installs the components every invocation needs unless a
// later plugin overrides them: the system clock, a timer sleeper, no identity
// caching, no retries, no auth and the invocation ID and request info
// interceptors.
func DefaultsPlugin() RuntimePlugin {
	components := NewRuntimeComponentsBuilder("defaults").
		SetTimeSource(SystemTimeSource{}).
		SetSleeper(TimerSleeper{}).
		SetIdentityCache(NoCache{}).
		SetRetryStrategy(NeverRetryStrategy{}).
		SetAuthSchemeOptionResolver(NewStaticAuthSchemeOptionResolver(NoAuthSchemeID)).
		AddAuthScheme(NoAuthScheme()).
		AddIdentityResolver(NoAuthSchemeID, NoAuthIdentityResolver{}).
		AddInterceptor(InvocationIDInterceptor{}).
		AddInterceptor(RequestInfoInterceptor{})

	layer := NewLayer("defaults")
	StorePut(layer, TimeoutConfig{})
	return NewStaticRuntimePlugin().
		WithOrder(OrderDefaults).
		WithConfig(layer.Freeze()).
		WithRuntimeComponents(components)
}

// NoAuthPlugin makes every operation it is applied to skip signing.
func NoAuthPlugin() RuntimePlugin {
	components := NewRuntimeComponentsBuilder("no auth").
		SetAuthSchemeOptionResolver(NewStaticAuthSchemeOptionResolver(NoAuthSchemeID)).
		AddAuthScheme(NoAuthScheme()).
		AddIdentityResolver(NoAuthSchemeID, NoAuthIdentityResolver{})
	return NewStaticRuntimePlugin().WithRuntimeComponents(components)
}

// ClientRateLimiterPlugin stores a client-owned rate limiter in the config
// bag. The standard retry strategy consults it only while it is present, which
// is how adaptive retry mode is switched on.
type ClientRateLimiterPlugin struct {
	limiter *ClientRateLimiter
}

// NewClientRateLimiterPlugin returns a plugin sharing limiter with every
// invocation it is applied to.
func NewClientRateLimiterPlugin(limiter *ClientRateLimiter) *ClientRateLimiterPlugin {
	return &ClientRateLimiterPlugin{limiter: limiter}
}

func (p *ClientRateLimiterPlugin) Order() Order { return OrderOverrides }

func (p *ClientRateLimiterPlugin) Config() *FrozenLayer {
	layer := NewLayer("client rate limiter")
	StorePut(layer, p.limiter)
	return layer.Freeze()
}

func (p *ClientRateLimiterPlugin) RuntimeComponents(*RuntimeComponentsBuilder) (*RuntimeComponentsBuilder, error) {
	return nil, nil
}
