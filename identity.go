package smithy

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Identity is a resolved credential: opaque data plus an optional expiration.
type Identity struct {
	data       any
	expiration time.Time
}

// NewIdentity returns an identity. A zero expiration means none.
func NewIdentity(data any, expiration time.Time) Identity {
	return Identity{data: data, expiration: expiration}
}

// Data returns the identity payload.
func (i Identity) Data() any { return i.data }

// Expiration returns the expiration and whether one is set.
func (i Identity) Expiration() (time.Time, bool) {
	return i.expiration, !i.expiration.IsZero()
}

// IdentityData returns the payload as T.
func IdentityData[T any](i Identity) (T, bool) {
	v, ok := i.data.(T)
	return v, ok
}

func (i Identity) String() string {
	if i.expiration.IsZero() {
		return fmt.Sprintf("Identity{%T}", i.data)
	}
	return fmt.Sprintf("Identity{%T, expires %s}", i.data, i.expiration.Format(time.RFC3339))
}

// IdentityResolver resolves an identity.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, rc *RuntimeComponents, cfg *ConfigBag) (Identity, error)
}

// IdentityResolverFunc adapts a function to IdentityResolver.
type IdentityResolverFunc func(ctx context.Context, rc *RuntimeComponents, cfg *ConfigBag) (Identity, error)

// ResolveIdentity calls f.
func (f IdentityResolverFunc) ResolveIdentity(ctx context.Context, rc *RuntimeComponents, cfg *ConfigBag) (Identity, error) {
	return f(ctx, rc, cfg)
}

// FallbackOnInterrupter is implemented by resolvers that can hand out a
// usable identity when a load is interrupted by a timeout.
type FallbackOnInterrupter interface {
	FallbackOnInterrupt() (Identity, bool)
}

// CachePartitioner is implemented by resolvers that choose their own cache
// partition, for example to share one across instances.
type CachePartitioner interface {
	CachePartition() IdentityCachePartition
}

// IdentityCachePartition isolates cached identities of distinct resolvers.
type IdentityCachePartition uint64

var nextPartition atomic.Uint64

// NewIdentityCachePartition returns a partition that no other call returns.
func NewIdentityCachePartition() IdentityCachePartition {
	return IdentityCachePartition(nextPartition.Add(1))
}

// SharedIdentityResolver is a resolver tagged with the cache partition it uses.
type SharedIdentityResolver struct {
	inner     IdentityResolver
	partition IdentityCachePartition
}

// NewSharedIdentityResolver wraps r. Unless r picks its own partition, a new
// one is allocated.
func NewSharedIdentityResolver(r IdentityResolver) *SharedIdentityResolver {
	if s, ok := r.(*SharedIdentityResolver); ok {
		return s
	}
	partition := NewIdentityCachePartition()
	if p, ok := r.(CachePartitioner); ok {
		partition = p.CachePartition()
	}
	return &SharedIdentityResolver{inner: r, partition: partition}
}

// ResolveIdentity delegates to the wrapped resolver.
func (s *SharedIdentityResolver) ResolveIdentity(ctx context.Context, rc *RuntimeComponents, cfg *ConfigBag) (Identity, error) {
	return s.inner.ResolveIdentity(ctx, rc, cfg)
}

// CachePartition returns the partition for this resolver.
func (s *SharedIdentityResolver) CachePartition() IdentityCachePartition {
	return s.partition
}

// FallbackOnInterrupt forwards to the wrapped resolver when it supports it.
func (s *SharedIdentityResolver) FallbackOnInterrupt() (Identity, bool) {
	if f, ok := s.inner.(FallbackOnInterrupter); ok {
		return f.FallbackOnInterrupt()
	}
	return Identity{}, false
}

// Unwrap returns the wrapped resolver.
func (s *SharedIdentityResolver) Unwrap() IdentityResolver {
	return s.inner
}

// IdentityCache resolves identities through a cache.
type IdentityCache interface {
	ResolveCachedIdentity(ctx context.Context, resolver *SharedIdentityResolver, rc *RuntimeComponents, cfg *ConfigBag) (Identity, error)
}

// NoCache resolves on every call.
type NoCache struct{}

// ResolveCachedIdentity calls the resolver directly.
func (NoCache) ResolveCachedIdentity(ctx context.Context, resolver *SharedIdentityResolver, rc *RuntimeComponents, cfg *ConfigBag) (Identity, error) {
	return resolver.ResolveIdentity(ctx, rc, cfg)
}
