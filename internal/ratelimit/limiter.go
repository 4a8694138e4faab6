// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package ratelimit throttles per-session protocol requests (pairing codes)
// so a retry storm cannot get an account rate limited server side.
package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var rateLimitExceeded = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "wabridge",
		Name:      "ratelimit_exceeded_total",
		Help:      "Total rate limit rejections",
	},
	[]string{"name", "limit_type"},
)

// Config holds rate limiting configuration.
type Config struct {
	// Name labels metrics, e.g. "pairing".
	Name string

	GlobalRate  rate.Limit
	GlobalBurst int

	PerKeyRate  rate.Limit
	PerKeyBurst int

	// Keys idle for longer than IdleTTL are dropped during cleanup.
	IdleTTL time.Duration
}

// PairingConfig allows one pairing-code request every 20s per session with a
// burst covering one full retry chain.
func PairingConfig() Config {
	return Config{
		Name:        "pairing",
		GlobalRate:  5,
		GlobalBurst: 20,
		PerKeyRate:  rate.Every(20 * time.Second),
		PerKeyBurst: 3,
		IdleTTL:     10 * time.Minute,
	}
}

type keyed struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter combines a global limiter with one limiter per key.
type Limiter struct {
	config Config
	global *rate.Limiter

	mu          sync.Mutex
	perKey      map[string]*keyed
	lastCleanup time.Time
}

func New(config Config) *Limiter {
	return &Limiter{
		config:      config,
		global:      rate.NewLimiter(config.GlobalRate, config.GlobalBurst),
		perKey:      make(map[string]*keyed),
		lastCleanup: time.Now(),
	}
}

// Allow reports whether one event for key may happen now.
func (l *Limiter) Allow(key string) bool {
	return l.AllowAt(key, time.Now())
}

// AllowAt is Allow evaluated at now.
func (l *Limiter) AllowAt(key string, now time.Time) bool {
	if !l.global.AllowN(now, 1) {
		rateLimitExceeded.WithLabelValues(l.config.Name, "global").Inc()
		return false
	}
	if !l.keyLimiter(key, now).AllowN(now, 1) {
		rateLimitExceeded.WithLabelValues(l.config.Name, "per_key").Inc()
		return false
	}
	return true
}

func (l *Limiter) keyLimiter(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.config.IdleTTL > 0 && now.Sub(l.lastCleanup) > l.config.IdleTTL {
		l.cleanupLocked(now)
	}
	k, ok := l.perKey[key]
	if !ok {
		k = &keyed{limiter: rate.NewLimiter(l.config.PerKeyRate, l.config.PerKeyBurst)}
		l.perKey[key] = k
	}
	k.lastSeen = now
	return k.limiter
}

func (l *Limiter) cleanupLocked(now time.Time) {
	for key, k := range l.perKey {
		if now.Sub(k.lastSeen) > l.config.IdleTTL {
			delete(l.perKey, key)
		}
	}
	l.lastCleanup = now
}

// Forget drops the limiter for key.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	delete(l.perKey, key)
	l.mu.Unlock()
}

// Keys returns the number of tracked keys.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.perKey)
}
