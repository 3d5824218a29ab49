package smithy

import (
	"fmt"
)

// configuredIdentityResolver ties an identity resolver to the auth scheme it
// serves.
type configuredIdentityResolver struct {
	schemeID AuthSchemeID
	resolver *SharedIdentityResolver
}

// components is the set of pluggable capabilities shared by the builder and
// the built form.
type components struct {
	httpConnector            HTTPConnector
	endpointResolver         EndpointResolver
	authSchemeOptionResolver AuthSchemeOptionResolver
	authSchemes              []AuthScheme
	identityResolvers        []configuredIdentityResolver
	identityCache            IdentityCache
	interceptors             []Interceptor
	retryStrategy            RetryStrategy
	retryClassifiers         []ClassifyRetry
	timeSource               TimeSource
	sleeper                  Sleeper
}

func (c *components) HTTPConnector() HTTPConnector       { return c.httpConnector }
func (c *components) EndpointResolver() EndpointResolver { return c.endpointResolver }
func (c *components) IdentityCache() IdentityCache       { return c.identityCache }
func (c *components) RetryStrategy() RetryStrategy       { return c.retryStrategy }
func (c *components) TimeSource() TimeSource             { return c.timeSource }
func (c *components) Sleeper() Sleeper                   { return c.sleeper }

func (c *components) AuthSchemeOptionResolver() AuthSchemeOptionResolver {
	return c.authSchemeOptionResolver
}

// Interceptors returns interceptors in registration order.
func (c *components) Interceptors() []Interceptor {
	return c.interceptors
}

// RetryClassifiers returns retry classifiers in registration order.
func (c *components) RetryClassifiers() []ClassifyRetry {
	return c.retryClassifiers
}

// AuthSchemes returns the registered auth schemes.
func (c *components) AuthSchemes() []AuthScheme {
	return c.authSchemes
}

// AuthScheme returns the scheme registered last for id.
func (c *components) AuthScheme(id AuthSchemeID) (AuthScheme, bool) {
	for i := len(c.authSchemes) - 1; i >= 0; i-- {
		if c.authSchemes[i].SchemeID() == id {
			return c.authSchemes[i], true
		}
	}
	return nil, false
}

// IdentityResolver returns the resolver registered last for id.
func (c *components) IdentityResolver(id AuthSchemeID) (*SharedIdentityResolver, bool) {
	for i := len(c.identityResolvers) - 1; i >= 0; i-- {
		if c.identityResolvers[i].schemeID == id {
			return c.identityResolvers[i].resolver, true
		}
	}
	return nil, false
}

// RuntimeComponentsBuilder collects component overrides contributed by one
// runtime plugin, or the merge of several.
type RuntimeComponentsBuilder struct {
	name string
	components
}

// NewRuntimeComponentsBuilder returns an empty builder. The name shows up in
// construction errors.
func NewRuntimeComponentsBuilder(name string) *RuntimeComponentsBuilder {
	return &RuntimeComponentsBuilder{name: name}
}

// Name returns the builder name.
func (b *RuntimeComponentsBuilder) Name() string { return b.name }

func (b *RuntimeComponentsBuilder) SetHTTPConnector(c HTTPConnector) *RuntimeComponentsBuilder {
	b.httpConnector = c
	return b
}

func (b *RuntimeComponentsBuilder) SetEndpointResolver(r EndpointResolver) *RuntimeComponentsBuilder {
	b.endpointResolver = r
	return b
}

func (b *RuntimeComponentsBuilder) SetAuthSchemeOptionResolver(r AuthSchemeOptionResolver) *RuntimeComponentsBuilder {
	b.authSchemeOptionResolver = r
	return b
}

func (b *RuntimeComponentsBuilder) AddAuthScheme(s AuthScheme) *RuntimeComponentsBuilder {
	b.authSchemes = append(b.authSchemes, s)
	return b
}

// AddIdentityResolver registers r for the auth scheme id. A plain resolver is
// wrapped in a SharedIdentityResolver so it gets its own cache partition.
func (b *RuntimeComponentsBuilder) AddIdentityResolver(id AuthSchemeID, r IdentityResolver) *RuntimeComponentsBuilder {
	shared, ok := r.(*SharedIdentityResolver)
	if !ok {
		shared = NewSharedIdentityResolver(r)
	}
	b.identityResolvers = append(b.identityResolvers, configuredIdentityResolver{schemeID: id, resolver: shared})
	return b
}

func (b *RuntimeComponentsBuilder) SetIdentityCache(c IdentityCache) *RuntimeComponentsBuilder {
	b.identityCache = c
	return b
}

func (b *RuntimeComponentsBuilder) AddInterceptor(i Interceptor) *RuntimeComponentsBuilder {
	b.interceptors = append(b.interceptors, i)
	return b
}

func (b *RuntimeComponentsBuilder) SetRetryStrategy(s RetryStrategy) *RuntimeComponentsBuilder {
	b.retryStrategy = s
	return b
}

func (b *RuntimeComponentsBuilder) AddRetryClassifier(c ClassifyRetry) *RuntimeComponentsBuilder {
	b.retryClassifiers = append(b.retryClassifiers, c)
	return b
}

func (b *RuntimeComponentsBuilder) SetTimeSource(t TimeSource) *RuntimeComponentsBuilder {
	b.timeSource = t
	return b
}

func (b *RuntimeComponentsBuilder) SetSleeper(s Sleeper) *RuntimeComponentsBuilder {
	b.sleeper = s
	return b
}

// MergeFrom returns a new builder holding b's components overridden by
// other's. Single-valued components set in other win; list-valued components
// are concatenated with b's entries first.
func (b *RuntimeComponentsBuilder) MergeFrom(other *RuntimeComponentsBuilder) *RuntimeComponentsBuilder {
	merged := &RuntimeComponentsBuilder{name: b.name, components: b.components.clone()}
	if other == nil {
		return merged
	}
	o := other.components
	if o.httpConnector != nil {
		merged.httpConnector = o.httpConnector
	}
	if o.endpointResolver != nil {
		merged.endpointResolver = o.endpointResolver
	}
	if o.authSchemeOptionResolver != nil {
		merged.authSchemeOptionResolver = o.authSchemeOptionResolver
	}
	if o.identityCache != nil {
		merged.identityCache = o.identityCache
	}
	if o.retryStrategy != nil {
		merged.retryStrategy = o.retryStrategy
	}
	if o.timeSource != nil {
		merged.timeSource = o.timeSource
	}
	if o.sleeper != nil {
		merged.sleeper = o.sleeper
	}
	merged.authSchemes = append(merged.authSchemes, o.authSchemes...)
	merged.identityResolvers = append(merged.identityResolvers, o.identityResolvers...)
	merged.interceptors = append(merged.interceptors, o.interceptors...)
	merged.retryClassifiers = append(merged.retryClassifiers, o.retryClassifiers...)
	return merged
}

func (c components) clone() components {
	c.authSchemes = append([]AuthScheme(nil), c.authSchemes...)
	c.identityResolvers = append([]configuredIdentityResolver(nil), c.identityResolvers...)
	c.interceptors = append([]Interceptor(nil), c.interceptors...)
	c.retryClassifiers = append([]ClassifyRetry(nil), c.retryClassifiers...)
	return c
}

// Build validates that every required component is present.
func (b *RuntimeComponentsBuilder) Build() (*RuntimeComponents, error) {
	missing := func(what string) error {
		return fmt.Errorf("%s: no %s was configured; a runtime plugin must provide one", b.name, what)
	}
	switch {
	case b.httpConnector == nil:
		return nil, missing("HTTP connector")
	case b.endpointResolver == nil:
		return nil, missing("endpoint resolver")
	case b.authSchemeOptionResolver == nil:
		return nil, missing("auth scheme option resolver")
	case b.identityCache == nil:
		return nil, missing("identity cache")
	case b.retryStrategy == nil:
		return nil, missing("retry strategy")
	case b.timeSource == nil:
		return nil, missing("time source")
	case b.sleeper == nil:
		return nil, missing("sleep implementation")
	}
	return &RuntimeComponents{components: b.components.clone()}, nil
}

// RuntimeComponents is the validated, immutable set of components used by
// one invocation.
type RuntimeComponents struct {
	components
}
