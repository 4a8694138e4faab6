// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package lifecycle

import "time"

// Backoff maps a reconnect attempt to a delay: min(Base*(attempt+1), Max).
// Attempts are zero based.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
	// MaxAttempts bounds retries; zero or negative means unbounded.
	MaxAttempts int
}

// DefaultMaxDelay caps every reconnect delay.
const DefaultMaxDelay = 60 * time.Second

// Delay returns the wait before the given attempt. It never decreases as
// attempt grows and never exceeds Max.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	maxDelay := b.Max
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if b.Base <= 0 {
		return 0
	}
	// guard the multiplication against overflow for very large attempts
	if int64(attempt+1) > int64(maxDelay/b.Base) {
		return maxDelay
	}
	return min(b.Base*time.Duration(attempt+1), maxDelay)
}

// Allow reports whether attempt may be made.
func (b Backoff) Allow(attempt int) bool {
	return b.MaxAttempts <= 0 || attempt < b.MaxAttempts
}

// Unbounded returns a copy of b without an attempt ceiling.
func (b Backoff) Unbounded() Backoff {
	b.MaxAttempts = 0
	return b
}

// WithCeiling returns a copy of b with the given attempt ceiling.
func (b Backoff) WithCeiling(n int) Backoff {
	b.MaxAttempts = n
	return b
}
