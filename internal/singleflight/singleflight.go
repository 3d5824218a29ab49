// Package singleflight makes sure that at most one call per key is in flight,
// with concurrent callers for the same key sharing its result.
package singleflight

import (
	"context"
	"sync"
)

// Result is delivered to every caller that joined a call.
type Result[V any] struct {
	Val    V
	Err    error
	Shared bool
}

// Group manages a set of in-flight calls to prevent duplicate work.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

// call represents an active call. done is closed once val and err are set.
type call[V any] struct {
	done    chan struct{}
	val     V
	err     error
	waiters int
}

// New creates a new Group.
func New[K comparable, V any]() *Group[K, V] {
	return &Group[K, V]{
		m: make(map[K]*call[V]),
	}
}

// DoChan starts fn for key unless a call for key is already running, in which
// case the caller joins it. fn runs on its own goroutine so callers can stop
// waiting without cancelling the shared call.
func (g *Group[K, V]) DoChan(key K, fn func() (V, error)) <-chan Result[V] {
	ch := make(chan Result[V], 1)

	g.mu.Lock()
	if c, ok := g.m[key]; ok {
		c.waiters++
		g.mu.Unlock()
		go func() {
			<-c.done
			ch <- Result[V]{Val: c.val, Err: c.err, Shared: true}
		}()
		return ch
	}
	c := &call[V]{done: make(chan struct{}), waiters: 1}
	g.m[key] = c
	g.mu.Unlock()

	go func() {
		c.val, c.err = fn()

		// Removing the entry before releasing waiters lets the next caller
		// start a fresh call as soon as this one is observable as finished.
		g.mu.Lock()
		delete(g.m, key)
		shared := c.waiters > 1
		g.mu.Unlock()

		close(c.done)
		ch <- Result[V]{Val: c.val, Err: c.err, Shared: shared}
	}()
	return ch
}

// Do is the blocking form of DoChan. It stops waiting when ctx is done; the
// shared call keeps running for the other callers.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (V, error) {
	select {
	case res := <-g.DoChan(key, fn):
		return res.Val, res.Err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// InFlight reports whether a call for key is running.
func (g *Group[K, V]) InFlight(key K) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.m[key]
	return ok
}
