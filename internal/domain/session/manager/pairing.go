// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/ManuGH/wabridge/internal/domain/session/event"
	"github.com/ManuGH/wabridge/internal/domain/session/ports"
	xlog "github.com/ManuGH/wabridge/internal/log"
)

// pairingRetryDelay separates attempts after errors other than not-connected.
const pairingRetryDelay = time.Second

// armPairingFallback requests a pairing code after PairingFallback even if
// no QR event arrived for c.
func (o *Orchestrator) armPairingFallback(e *sessionEntry, c ports.Client) {
	t := o.clock.AfterFunc(o.cfg.PairingFallback, func() {
		if !o.owns(e, c) {
			return
		}
		o.triggerPairing(e, c, "fallback")
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.manual || e.pairingRequested || e.registered || e.client != c {
		t.Stop()
		return
	}
	if e.fallback != nil {
		e.fallback.Stop()
	}
	e.fallback = t
}

// triggerPairing starts the request chain at most once per client; a QR
// event and the fallback timer race for it.
func (o *Orchestrator) triggerPairing(e *sessionEntry, c ports.Client, trigger string) {
	if !e.claimPairing() {
		return
	}
	l := o.log(o.ctx, e)
	if !o.pairing.Allow(e.id) {
		pairingRequestsTotal.WithLabelValues(trigger, "throttled").Inc()
		l.Warn().Str("trigger", trigger).Msg("pairing code request throttled")
		return
	}
	l.Info().Str("trigger", trigger).Str(xlog.FieldEvent, "session.pairing_requested").Msg("requesting pairing code")
	o.workers.Go(func() { o.requestPairingCode(e, c, trigger) })
}

func (o *Orchestrator) requestPairingCode(e *sessionEntry, c ports.Client, trigger string) {
	l := o.log(o.ctx, e)
	for attempt := 1; ; attempt++ {
		if !o.owns(e, c) {
			pairingRequestsTotal.WithLabelValues(trigger, "stale").Inc()
			return
		}
		code, err := c.RequestPairingCode(o.ctx, e.opts.PhoneNumber, o.cfg.PairingClientName)
		if err == nil {
			formatted := FormatPairingCode(code)
			pairingRequestsTotal.WithLabelValues(trigger, "success").Inc()
			l.Info().Int(xlog.FieldAttempt, attempt).Msg("pairing code issued")
			_ = o.events.PairingCode(o.ctx, e.tenantID, event.PairingCodePayload{
				SessionID:   e.id,
				PairingCode: formatted,
				PhoneNumber: e.opts.PhoneNumber,
			})
			return
		}
		if errors.Is(err, ports.ErrRateLimited) {
			pairingRequestsTotal.WithLabelValues(trigger, "rate_limited").Inc()
			l.Warn().Err(err).Int(xlog.FieldAttempt, attempt).Msg("pairing code request rate limited, giving up")
			return
		}
		if attempt >= o.cfg.PairingRequestAttempts {
			pairingRequestsTotal.WithLabelValues(trigger, "failed").Inc()
			l.Error().Err(err).Int(xlog.FieldAttempt, attempt).Msg("pairing code request failed")
			return
		}

		wait := pairingRetryDelay
		if errors.Is(err, ports.ErrNotConnected) {
			wait = o.cfg.PairingRetryStep * time.Duration(attempt)
		}
		l.Warn().Err(err).Int(xlog.FieldAttempt, attempt).Dur(xlog.FieldDelay, wait).Msg("pairing code request failed, retrying")
		if err := o.clock.Sleep(o.ctx, wait); err != nil {
			return
		}
	}
}

// FormatPairingCode renders an 8 character code as XXXX-XXXX. Other lengths
// are returned upper-cased without a separator.
func FormatPairingCode(code string) string {
	var b strings.Builder
	for _, r := range code {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	clean := b.String()
	if len(clean) != 8 {
		return clean
	}
	return clean[:4] + "-" + clean[4:]
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
