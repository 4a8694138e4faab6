// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package event builds outbound event envelopes and publishes them on the
// tenant/session scoped routing key.
package event

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/ManuGH/wabridge/internal/broker"
	"github.com/ManuGH/wabridge/internal/clock"
	xlog "github.com/ManuGH/wabridge/internal/log"
)

var eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wabridge_events_published_total",
	Help: "Outbound events by type and outcome",
}, []string{"type", "outcome"})

const (
	defaultPublishTimeout = 5 * time.Second
	qrImageSize           = 256
)

// Publisher never fails its caller: publish errors are logged and returned
// only for callers that care.
type Publisher struct {
	transport broker.Transport
	routing   broker.Routing
	clock     clock.Clock
	timeout   time.Duration
	newID     func() string
	renderQR  bool
	logger    zerolog.Logger
}

type Option func(*Publisher)

func WithClock(c clock.Clock) Option { return func(p *Publisher) { p.clock = c } }

func WithTimeout(d time.Duration) Option { return func(p *Publisher) { p.timeout = d } }

// WithIDGenerator replaces the uuid envelope ids.
func WithIDGenerator(fn func() string) Option { return func(p *Publisher) { p.newID = fn } }

// WithQRImages toggles the PNG data URL on session.qrcode events.
func WithQRImages(enabled bool) Option { return func(p *Publisher) { p.renderQR = enabled } }

func NewPublisher(t broker.Transport, routing broker.Routing, opts ...Option) *Publisher {
	p := &Publisher{
		transport: t,
		routing:   routing,
		clock:     clock.Real(),
		timeout:   defaultPublishTimeout,
		newID:     uuid.NewString,
		renderQR:  true,
		logger:    xlog.WithComponent("event"),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Publish wraps payload in an envelope and sends it. The caller's
// cancellation is ignored so that events emitted during shutdown still go out.
func (p *Publisher) Publish(ctx context.Context, tenantID, sessionID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		eventsPublished.WithLabelValues(eventType, "encode_error").Inc()
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	env := broker.Envelope{
		ID:        p.newID(),
		Timestamp: broker.NewTimestamp(p.clock.Now()),
		TenantID:  tenantID,
		Type:      eventType,
		Payload:   body,
	}
	key := p.routing.EventKey(tenantID, sessionID, eventType)

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if err := p.transport.PublishEvent(pctx, key, env); err != nil {
		eventsPublished.WithLabelValues(eventType, "error").Inc()
		l := xlog.WithContext(ctx, p.logger)
		l.Error().Err(err).
			Str(xlog.FieldTenantID, tenantID).
			Str(xlog.FieldSessionID, sessionID).
			Str(xlog.FieldEventType, eventType).
			Str(xlog.FieldRoutingKey, key).
			Msg("failed to publish event")
		return err
	}
	eventsPublished.WithLabelValues(eventType, "ok").Inc()
	p.logger.Debug().
		Str(xlog.FieldSessionID, sessionID).
		Str(xlog.FieldEventType, eventType).
		Str(xlog.FieldRoutingKey, key).
		Msg("event published")
	return nil
}

func (p *Publisher) Status(ctx context.Context, tenantID string, pl StatusPayload) error {
	return p.Publish(ctx, tenantID, pl.SessionID, TypeSessionStatus, pl)
}

// QRCode publishes the raw QR string and, unless disabled, a PNG data URL.
func (p *Publisher) QRCode(ctx context.Context, tenantID, sessionID, code string) error {
	pl := QRCodePayload{SessionID: sessionID, QRCode: code}
	if p.renderQR {
		if url, err := QRDataURL(code); err != nil {
			p.logger.Warn().Err(err).Str(xlog.FieldSessionID, sessionID).Msg("qr render failed")
		} else {
			pl.QRCodeDataURL = url
		}
	}
	return p.Publish(ctx, tenantID, sessionID, TypeSessionQRCode, pl)
}

// QRDataURL renders code as a base64 PNG data URL.
func QRDataURL(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

func (p *Publisher) PairingCode(ctx context.Context, tenantID string, pl PairingCodePayload) error {
	return p.Publish(ctx, tenantID, pl.SessionID, TypeSessionPairingCode, pl)
}

func (p *Publisher) MessageReceived(ctx context.Context, tenantID string, pl MessagePayload) error {
	return p.Publish(ctx, tenantID, pl.SessionID, TypeMessageReceived, pl)
}

func (p *Publisher) Ack(ctx context.Context, tenantID string, pl AckPayload) error {
	return p.Publish(ctx, tenantID, pl.SessionID, TypeMessageAck, pl)
}

func (p *Publisher) Reaction(ctx context.Context, tenantID string, pl ReactionPayload) error {
	return p.Publish(ctx, tenantID, pl.SessionID, TypeMessageReaction, pl)
}

func (p *Publisher) ContactUpdate(ctx context.Context, tenantID string, pl ContactPayload) error {
	return p.Publish(ctx, tenantID, pl.SessionID, TypeContactUpdate, pl)
}

func (p *Publisher) HistoryStatus(ctx context.Context, tenantID string, pl HistoryPayload) error {
	return p.Publish(ctx, tenantID, pl.SessionID, TypeHistoryStatus, pl)
}
