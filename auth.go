package smithy

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// AuthSchemeID identifies an auth scheme, for example "sigv4" or "no_auth".
type AuthSchemeID string

// NoAuthSchemeID is the scheme that performs no signing.
const NoAuthSchemeID AuthSchemeID = "no_auth"

// AuthSchemeEndpointConfig holds the endpoint properties that apply to one
// auth scheme.
type AuthSchemeEndpointConfig map[string]any

// Signer signs a request with a resolved identity.
type Signer interface {
	SignHTTPRequest(req *http.Request, identity Identity, settings AuthSchemeEndpointConfig, rc *RuntimeComponents, cfg *ConfigBag) error
}

// SignerFunc adapts a function to Signer.
type SignerFunc func(req *http.Request, identity Identity, settings AuthSchemeEndpointConfig, rc *RuntimeComponents, cfg *ConfigBag) error

// SignHTTPRequest calls f.
func (f SignerFunc) SignHTTPRequest(req *http.Request, identity Identity, settings AuthSchemeEndpointConfig, rc *RuntimeComponents, cfg *ConfigBag) error {
	return f(req, identity, settings, rc, cfg)
}

// AuthScheme pairs a scheme id with its signer.
type AuthScheme interface {
	SchemeID() AuthSchemeID
	Signer() Signer
}

// NewAuthScheme returns a scheme for id signed by signer.
func NewAuthScheme(id AuthSchemeID, signer Signer) AuthScheme {
	return staticAuthScheme{id: id, signer: signer}
}

type staticAuthScheme struct {
	id     AuthSchemeID
	signer Signer
}

func (s staticAuthScheme) SchemeID() AuthSchemeID { return s.id }
func (s staticAuthScheme) Signer() Signer         { return s.signer }

// AuthSchemeOptionResolverParams carries the operation's auth parameters
// through the config bag.
type AuthSchemeOptionResolverParams struct {
	TypeErasedBox
}

// AuthSchemeOptionResolver returns candidate auth schemes in preference order.
type AuthSchemeOptionResolver interface {
	ResolveAuthSchemeOptions(params AuthSchemeOptionResolverParams) ([]AuthSchemeID, error)
}

// StaticAuthSchemeOptionResolver always returns the same options.
type StaticAuthSchemeOptionResolver struct {
	options []AuthSchemeID
}

// NewStaticAuthSchemeOptionResolver returns a resolver for options.
func NewStaticAuthSchemeOptionResolver(options ...AuthSchemeID) *StaticAuthSchemeOptionResolver {
	return &StaticAuthSchemeOptionResolver{options: options}
}

// ResolveAuthSchemeOptions returns the configured options.
func (r *StaticAuthSchemeOptionResolver) ResolveAuthSchemeOptions(AuthSchemeOptionResolverParams) ([]AuthSchemeID, error) {
	return append([]AuthSchemeID(nil), r.options...), nil
}

// NoAuthScheme returns the scheme that leaves requests unsigned.
func NoAuthScheme() AuthScheme {
	return NewAuthScheme(NoAuthSchemeID, SignerFunc(func(*http.Request, Identity, AuthSchemeEndpointConfig, *RuntimeComponents, *ConfigBag) error {
		return nil
	}))
}

// NoAuthIdentity is the identity used by the no_auth scheme.
type NoAuthIdentity struct{}

// NoAuthIdentityResolver resolves a NoAuthIdentity without an expiration.
type NoAuthIdentityResolver struct{}

// ResolveIdentity returns the empty identity.
func (NoAuthIdentityResolver) ResolveIdentity(context.Context, *RuntimeComponents, *ConfigBag) (Identity, error) {
	return NewIdentity(NoAuthIdentity{}, time.Time{}), nil
}

// AuthError reports a failure to pick a scheme, resolve its identity, or sign.
type AuthError struct {
	SchemeID AuthSchemeID
	Stage    string
	Err      error
}

func (e *AuthError) Error() string {
	if e.SchemeID == "" {
		return fmt.Sprintf("auth %s failed: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("auth %s failed for scheme %q: %v", e.Stage, e.SchemeID, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// orchestrateAuth picks the first auth option that has both a registered
// scheme and an identity resolver, resolves the identity through the
// identity cache, and signs the request.
func orchestrateAuth(ctx context.Context, ictx *InterceptorContext, rc *RuntimeComponents, cfg *ConfigBag) error {
	params, _ := Load[AuthSchemeOptionResolverParams](cfg)
	options, err := rc.AuthSchemeOptionResolver().ResolveAuthSchemeOptions(params)
	if err != nil {
		return &AuthError{Stage: "option resolution", Err: err}
	}
	logger, debug := loggerFrom(cfg)

	for _, id := range options {
		scheme, ok := rc.AuthScheme(id)
		if !ok {
			continue
		}
		resolver, ok := rc.IdentityResolver(id)
		if !ok {
			continue
		}
		identity, err := rc.IdentityCache().ResolveCachedIdentity(ctx, resolver, rc, cfg)
		if err != nil {
			return &AuthError{SchemeID: id, Stage: "identity resolution", Err: err}
		}
		if debug.LogIdentity {
			logger.Debug("Resolved identity", "scheme", string(id), "identity", identity.String())
		}
		settings := endpointAuthConfig(cfg, id)
		if err := scheme.Signer().SignHTTPRequest(ictx.Request(), identity, settings, rc, cfg); err != nil {
			return &AuthError{SchemeID: id, Stage: "signing", Err: err}
		}
		StorePut(cfg.InterceptorState(), id)
		return nil
	}

	tried := make([]string, len(options))
	for i, id := range options {
		tried[i] = string(id)
	}
	return &AuthError{
		Stage: "scheme selection",
		Err:   fmt.Errorf("%w (options: [%s])", ErrNoMatchingAuthScheme, strings.Join(tried, ", ")),
	}
}

// endpointAuthConfig extracts the entry for id from the resolved endpoint's
// "authSchemes" property.
func endpointAuthConfig(cfg *ConfigBag, id AuthSchemeID) AuthSchemeEndpointConfig {
	ep, ok := Load[Endpoint](cfg)
	if !ok {
		return nil
	}
	schemes, _ := ep.Properties["authSchemes"].([]map[string]any)
	for _, s := range schemes {
		if name, _ := s["name"].(string); AuthSchemeID(name) == id {
			return AuthSchemeEndpointConfig(s)
		}
	}
	return nil
}
