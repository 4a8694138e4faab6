// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package cache provides small TTL caches for lookups that are expensive on
// the protocol side, such as profile picture URLs.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/wabridge/internal/clock"
)

// Cache stores string values with a TTL. Implementations never fail loudly:
// backend errors count as misses.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Stats() Stats
	Close() error
}

// Stats holds cache counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Sets        int64
	Evictions   int64
	CurrentSize int
}

type entry struct {
	value      string
	expiration time.Time
}

type memoryCache struct {
	clock clock.Clock

	mu      sync.Mutex
	entries map[string]entry
	stats   Stats

	sweepEvery time.Duration
	sweep      clock.Timer
	closed     bool
}

// NewMemoryCache creates an in-memory cache. Expired entries are dropped on
// read and by a sweep every cleanupInterval (disabled when <= 0).
func NewMemoryCache(clk clock.Clock, cleanupInterval time.Duration) Cache {
	if clk == nil {
		clk = clock.Real()
	}
	c := &memoryCache{
		clock:      clk,
		entries:    make(map[string]entry),
		sweepEvery: cleanupInterval,
	}
	if cleanupInterval > 0 {
		c.sweep = clk.AfterFunc(cleanupInterval, c.runSweep)
	}
	return c
}

func (c *memoryCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return "", false
	}
	if !c.clock.Now().Before(e.expiration) {
		delete(c.entries, key)
		c.stats.Evictions++
		c.stats.Misses++
		return "", false
	}
	c.stats.Hits++
	return e.value, true
}

func (c *memoryCache) Set(_ context.Context, key, value string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiration: c.clock.Now().Add(ttl)}
	c.stats.Sets++
}

func (c *memoryCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *memoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.CurrentSize = len(c.entries)
	return s
}

// deleteExpired returns the number of entries removed.
func (c *memoryCache) deleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expiration) {
			delete(c.entries, k)
			n++
		}
	}
	c.stats.Evictions += int64(n)
	return n
}

func (c *memoryCache) runSweep() {
	c.deleteExpired()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.sweep = c.clock.AfterFunc(c.sweepEvery, c.runSweep)
	}
}

// Close stops the sweep.
func (c *memoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.sweep != nil {
		c.sweep.Stop()
	}
	return nil
}

type noOpCache struct{}

// NewNoOpCache returns a cache that never stores anything.
func NewNoOpCache() Cache { return noOpCache{} }

func (noOpCache) Get(context.Context, string) (string, bool)         { return "", false }
func (noOpCache) Set(context.Context, string, string, time.Duration) {}
func (noOpCache) Delete(context.Context, string)                     {}
func (noOpCache) Stats() Stats                                       { return Stats{} }
func (noOpCache) Close() error                                       { return nil }
