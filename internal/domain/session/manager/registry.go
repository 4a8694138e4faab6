// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"sort"
	"sync"

	"github.com/ManuGH/wabridge/internal/clock"
	"github.com/ManuGH/wabridge/internal/domain/session/model"
	"github.com/ManuGH/wabridge/internal/domain/session/ports"
)

// sessionEntry is the runtime state of one session. The registry owns the
// pointer; a removed entry is never reinserted, so pointer identity plus gen
// identifies a session incarnation.
type sessionEntry struct {
	id       string
	tenantID string
	gen      uint64
	opts     model.StartOptions

	mu               sync.Mutex
	status           model.Status
	client           ports.Client
	manual           bool
	retries          int
	pairingRequested bool
	registered       bool
	closeHandled     bool
	identity         ports.Identity
	fallback         clock.Timer
	reconnect        clock.Timer
}

func newEntry(id, tenantID string, gen uint64, opts model.StartOptions) *sessionEntry {
	return &sessionEntry{id: id, tenantID: tenantID, gen: gen, opts: opts, status: model.StatusOpening}
}

func (e *sessionEntry) Status() model.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *sessionEntry) setStatus(s model.Status) model.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.status
	e.status = s
	return prev
}

func (e *sessionEntry) Client() ports.Client {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client
}

// attach installs a fresh client and resets the per-connection pairing guard.
func (e *sessionEntry) attach(c ports.Client) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.client = c
	e.pairingRequested = false
	e.closeHandled = false
}

// claimClose returns true once for the attached client c. Both the event
// loop and a failed reconnect may observe the same close.
func (e *sessionEntry) claimClose(c ports.Client) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != c || e.closeHandled {
		return false
	}
	e.closeHandled = true
	return true
}

// opened resets the retry budget after a successful connection.
func (e *sessionEntry) opened() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.retries = 0
	e.status = model.StatusConnected
	if e.fallback != nil {
		e.fallback.Stop()
		e.fallback = nil
	}
}

func (e *sessionEntry) isManual() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manual
}

// markManual sets the manual-disconnect marker, cancels pending timers and
// hands back the live client so the caller can close it.
func (e *sessionEntry) markManual() ports.Client {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.manual = true
	e.stopTimersLocked()
	return e.client
}

func (e *sessionEntry) stopTimers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTimersLocked()
}

func (e *sessionEntry) stopTimersLocked() {
	if e.fallback != nil {
		e.fallback.Stop()
		e.fallback = nil
	}
	if e.reconnect != nil {
		e.reconnect.Stop()
		e.reconnect = nil
	}
}

// markRegistered records a completed login and disarms the pairing fallback.
func (e *sessionEntry) markRegistered() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registered = true
	if e.fallback != nil {
		e.fallback.Stop()
		e.fallback = nil
	}
}

// claimPairing returns true exactly once per attached client.
func (e *sessionEntry) claimPairing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pairingRequested || e.manual {
		return false
	}
	e.pairingRequested = true
	if e.fallback != nil {
		e.fallback.Stop()
		e.fallback = nil
	}
	return true
}

func (e *sessionEntry) Identity() ports.Identity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.identity
}

func (e *sessionEntry) setIdentity(id ports.Identity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.identity = id
}

// SessionInfo is a point-in-time view of one registered session.
type SessionInfo struct {
	SessionID string       `json:"sessionId"`
	TenantID  string       `json:"tenantId"`
	Status    model.Status `json:"status"`
	Retries   int          `json:"retries"`
	KeepAlive bool         `json:"keepAlive"`
}

func (e *sessionEntry) info() SessionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return SessionInfo{
		SessionID: e.id,
		TenantID:  e.tenantID,
		Status:    e.status,
		Retries:   e.retries,
		KeepAlive: e.opts.KeepAlive,
	}
}

// registry maps session ids to their live entry. At most one entry per id.
type registry struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*sessionEntry)}
}

// reserve inserts e unless an entry for the same id exists. It returns the
// entry that is registered afterwards and whether it is e.
func (r *registry) reserve(e *sessionEntry) (*sessionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.entries[e.id]; ok {
		return cur, false
	}
	r.entries[e.id] = e
	return e, true
}

func (r *registry) get(id string) (*sessionEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// current reports whether e is still the registered incarnation of its id.
func (r *registry) current(e *sessionEntry) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cur, ok := r.entries[e.id]
	return ok && cur == e && cur.gen == e.gen
}

// remove deletes e only if it is still the registered incarnation.
func (r *registry) remove(e *sessionEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.entries[e.id]; ok && cur == e {
		delete(r.entries, e.id)
		return true
	}
	return false
}

// drain empties the registry and returns what it held.
func (r *registry) drain() []*sessionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*sessionEntry, 0, len(r.entries))
	for id, e := range r.entries {
		out = append(out, e)
		delete(r.entries, id)
	}
	return out
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *registry) snapshot() []SessionInfo {
	r.mu.RLock()
	entries := make([]*sessionEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]SessionInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

func (r *registry) countByStatus() map[model.Status]int {
	counts := map[model.Status]int{
		model.StatusOpening:      0,
		model.StatusConnected:    0,
		model.StatusDisconnected: 0,
	}
	for _, info := range r.snapshot() {
		counts[info.Status]++
	}
	return counts
}
