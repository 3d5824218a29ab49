package credentials

import (
	"context"

	smithy "github.com/awslabs/smithy-rs-sub000"
)

// Fallback is implemented by providers that can hand back credentials when a
// load is interrupted.
type Fallback interface {
	FallbackOnInterrupt() (Credentials, bool)
}

// Resolver resolves identities from a Provider. The identity data is the
// Credentials value.
type Resolver struct {
	provider Provider
}

// IdentityResolver adapts p to smithy.IdentityResolver.
func IdentityResolver(p Provider) *Resolver {
	return &Resolver{provider: p}
}

// ResolveIdentity loads credentials and carries their expiry over.
func (r *Resolver) ResolveIdentity(ctx context.Context, _ *smithy.RuntimeComponents, _ *smithy.ConfigBag) (smithy.Identity, error) {
	creds, err := r.provider.ProvideCredentials(ctx)
	if err != nil {
		return smithy.Identity{}, err
	}
	return smithy.NewIdentity(creds, creds.Expires), nil
}

// FallbackOnInterrupt forwards to the provider when it supports it.
func (r *Resolver) FallbackOnInterrupt() (smithy.Identity, bool) {
	f, ok := r.provider.(Fallback)
	if !ok {
		return smithy.Identity{}, false
	}
	creds, ok := f.FallbackOnInterrupt()
	if !ok {
		return smithy.Identity{}, false
	}
	return smithy.NewIdentity(creds, creds.Expires), true
}
