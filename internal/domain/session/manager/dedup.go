// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"sync"
	"time"

	"github.com/ManuGH/wabridge/internal/clock"
)

// DefaultDedupTTL is how long a self-sent message id suppresses its echo.
const DefaultDedupTTL = 10 * time.Second

// dedupSet remembers message ids this process just sent so the protocol's
// own echo of them is dropped exactly once.
type dedupSet struct {
	clock clock.Clock
	ttl   time.Duration

	mu    sync.Mutex
	items map[string]*dedupItem
}

type dedupItem struct {
	timer clock.Timer
}

func newDedupSet(clk clock.Clock, ttl time.Duration) *dedupSet {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &dedupSet{clock: clk, ttl: ttl, items: make(map[string]*dedupItem)}
}

// Add tracks id for one ttl. Re-adding restarts the window.
func (d *dedupSet) Add(id string) {
	if id == "" {
		return
	}
	item := &dedupItem{}
	d.mu.Lock()
	if prev, ok := d.items[id]; ok && prev.timer != nil {
		prev.timer.Stop()
	}
	d.items[id] = item
	d.mu.Unlock()

	// scheduled outside mu: a fake clock may fire synchronously
	t := d.clock.AfterFunc(d.ttl, func() { d.expire(id, item) })
	d.mu.Lock()
	if d.items[id] == item {
		item.timer = t
	}
	d.mu.Unlock()
}

func (d *dedupSet) expire(id string, item *dedupItem) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.items[id] == item {
		delete(d.items, id)
	}
}

// Consume reports whether id was tracked and forgets it.
func (d *dedupSet) Consume(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.items[id]
	if !ok {
		return false
	}
	if item.timer != nil {
		item.timer.Stop()
	}
	delete(d.items, id)
	return true
}

func (d *dedupSet) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

// Close cancels every pending expiry.
func (d *dedupSet) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, item := range d.items {
		if item.timer != nil {
			item.timer.Stop()
		}
		delete(d.items, id)
	}
}
