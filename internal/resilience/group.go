// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"sync"
	"time"
)

// Group hands out one CircuitBreaker per key, so a single broken session
// does not short-circuit lookups for every other session.
type Group struct {
	name         string
	threshold    int
	resetTimeout time.Duration
	opts         []Option

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewGroup creates an empty Group. Breakers are created lazily with the
// given settings and are named "<name>:<key>".
func NewGroup(name string, threshold int, resetTimeout time.Duration, opts ...Option) *Group {
	return &Group{
		name:         name,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		opts:         opts,
		breakers:     make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for key, creating it on first use.
func (g *Group) Get(key string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	cb, ok := g.breakers[key]
	if !ok {
		cb = NewCircuitBreaker(g.name, g.threshold, g.resetTimeout, g.opts...)
		g.breakers[key] = cb
	}
	return cb
}

// Execute runs fn through the breaker for key.
func (g *Group) Execute(key string, fn func() error) error {
	return g.Get(key).Execute(fn)
}

// Forget drops the breaker for key, e.g. once a session is stopped.
func (g *Group) Forget(key string) {
	g.mu.Lock()
	delete(g.breakers, key)
	g.mu.Unlock()
}

// Len reports how many keys currently hold a breaker.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.breakers)
}
