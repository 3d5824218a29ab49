package smithy

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/awslabs/smithy-rs-sub000/internal/singleflight"
)

const (
	// DefaultIdentityLoadTimeout bounds a single resolver call.
	DefaultIdentityLoadTimeout = 5 * time.Second
	// DefaultIdentityBufferTime is how long before expiration an identity is refreshed.
	DefaultIdentityBufferTime = 10 * time.Second
	// DefaultIdentityExpiration is assigned to identities that carry no expiration.
	DefaultIdentityExpiration = 15 * time.Minute
)

// LazyCacheOption configures a LazyCache.
type LazyCacheOption func(*LazyCache)

// WithLoadTimeout bounds every resolver call.
func WithLoadTimeout(d time.Duration) LazyCacheOption {
	return func(c *LazyCache) {
		c.loadTimeout = d
	}
}

// WithBufferTime sets how long before expiration identities are refreshed.
func WithBufferTime(d time.Duration) LazyCacheOption {
	return func(c *LazyCache) {
		c.bufferTime = d
	}
}

// WithDefaultExpiration sets the lifetime of identities without an
// expiration. It panics below fifteen minutes.
func WithDefaultExpiration(d time.Duration) LazyCacheOption {
	if d < DefaultIdentityExpiration {
		panic(fmt.Sprintf("smithy: default identity expiration must be at least %v, got %v", DefaultIdentityExpiration, d))
	}
	return func(c *LazyCache) {
		c.defaultExpiration = d
	}
}

// WithBufferTimeJitterFraction overrides the random fraction of the buffer
// time applied to each loaded identity. fn must return values in [0, 1).
func WithBufferTimeJitterFraction(fn func() float64) LazyCacheOption {
	return func(c *LazyCache) {
		c.jitterFraction = fn
	}
}

// WithIdentityCacheMetrics records hits, misses and loads.
func WithIdentityCacheMetrics(mc *MetricsCollector) LazyCacheOption {
	return func(c *LazyCache) {
		c.metrics = mc
	}
}

type cachedIdentity struct {
	identity  Identity
	refreshAt time.Time
}

// LazyCache loads identities on first use and keeps them until shortly before
// they expire. Each resolver gets its own partition, and at most one resolver
// call per partition is in flight at a time.
type LazyCache struct {
	loadTimeout       time.Duration
	bufferTime        time.Duration
	defaultExpiration time.Duration
	jitterFraction    func() float64
	metrics           *MetricsCollector

	mu         sync.RWMutex
	partitions map[IdentityCachePartition]cachedIdentity
	loads      *singleflight.Group[IdentityCachePartition, Identity]
}

// NewLazyCache returns a cache with the defaults above, overridden by opts.
func NewLazyCache(opts ...LazyCacheOption) *LazyCache {
	c := &LazyCache{
		loadTimeout:       DefaultIdentityLoadTimeout,
		bufferTime:        DefaultIdentityBufferTime,
		defaultExpiration: DefaultIdentityExpiration,
		jitterFraction:    rand.Float64,
		partitions:        make(map[IdentityCachePartition]cachedIdentity),
		loads:             singleflight.New[IdentityCachePartition, Identity](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveCachedIdentity returns the cached identity for resolver's partition,
// loading it when missing or about to expire. The identity returned is never
// expired at the time of the call.
func (c *LazyCache) ResolveCachedIdentity(ctx context.Context, resolver *SharedIdentityResolver, rc *RuntimeComponents, cfg *ConfigBag) (Identity, error) {
	partition := resolver.CachePartition()
	logger, debug := loggerFrom(cfg)
	timeSource := rc.TimeSource()
	now := timeSource.Now()

	if id, ok := c.lookup(partition, now); ok {
		c.metrics.RecordIdentityCacheHit()
		if debug.LogIdentity {
			logger.Debug("Identity cache hit", "partition", uint64(partition))
		}
		return id, nil
	}
	c.metrics.RecordIdentityCacheMiss()

	for {
		led := false
		id, err := c.loads.Do(ctx, partition, func() (Identity, error) {
			led = true
			// A load that finished between the lookup above and joining the
			// group has already refreshed the partition.
			if id, ok := c.lookup(partition, now); ok {
				return id, nil
			}
			if debug.LogIdentity {
				logger.Debug("Loading identity", "partition", uint64(partition))
			}
			start := timeSource.Now()
			id, err := c.load(context.WithoutCancel(ctx), resolver, rc, cfg)
			c.metrics.RecordIdentityLoad(timeSource.Now().Sub(start), err)
			if err != nil {
				logger.Warn("Identity load failed", "partition", uint64(partition), "error", err.Error())
				return Identity{}, err
			}
			c.store(partition, id, timeSource.Now())
			return id, nil
		})
		// A load joined from another caller may have started before this
		// call and produced an identity that is already stale for it.
		if err != nil || led || !expiredAt(id, now) {
			return id, err
		}
		if id, ok := c.lookup(partition, now); ok {
			return id, nil
		}
	}
}

func expiredAt(id Identity, now time.Time) bool {
	expiration, ok := id.Expiration()
	return ok && !now.Before(expiration)
}

func (c *LazyCache) lookup(partition IdentityCachePartition, now time.Time) (Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.partitions[partition]
	if !ok || !now.Before(entry.refreshAt) {
		return Identity{}, false
	}
	return entry.identity, true
}

func (c *LazyCache) store(partition IdentityCachePartition, id Identity, now time.Time) {
	expiration, ok := id.Expiration()
	if !ok {
		expiration = now.Add(c.defaultExpiration)
	}
	jitter := time.Duration(float64(c.bufferTime) * c.jitterFraction())
	c.mu.Lock()
	c.partitions[partition] = cachedIdentity{identity: id, refreshAt: expiration.Add(-jitter)}
	c.mu.Unlock()
}

// interruptibleContext is the context given to a resolver during a load. The
// load timeout only starts once the resolver waits on Done, so a resolver that
// returns without waiting always keeps its result and never consumes the
// sleeper.
type interruptibleContext struct {
	context.Context
	arm   sync.Once
	start func()
}

func (c *interruptibleContext) Done() <-chan struct{} {
	c.arm.Do(c.start)
	return c.Context.Done()
}

// load calls the resolver, interrupting it through its context once the load
// timeout has elapsed. A result the resolver returns is kept even when the
// timeout fired meanwhile; an interrupted resolver falls back to its
// fallback identity when it has one.
func (c *LazyCache) load(ctx context.Context, resolver *SharedIdentityResolver, rc *RuntimeComponents, cfg *ConfigBag) (Identity, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	rctx := &interruptibleContext{Context: ctx}
	rctx.start = func() {
		go func() {
			if rc.Sleeper().Sleep(ctx, c.loadTimeout) == nil {
				cancel(&TimedOutError{Timeout: c.loadTimeout})
			}
		}()
	}

	id, err := resolver.ResolveIdentity(rctx, rc, cfg)
	if err == nil {
		return id, nil
	}
	var timedOut *TimedOutError
	if !errors.As(context.Cause(ctx), &timedOut) {
		return Identity{}, err
	}
	if fallback, ok := resolver.FallbackOnInterrupt(); ok {
		return fallback, nil
	}
	return Identity{}, timedOut
}
