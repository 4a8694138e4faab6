// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package redis implements broker.Transport on Redis pub/sub. Channels carry
// the same routing keys as the AMQP driver; there is no acknowledgement, so
// rejected commands are logged and dropped.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/wabridge/internal/broker"
	"github.com/ManuGH/wabridge/internal/clock"
	xlog "github.com/ManuGH/wabridge/internal/log"
	"github.com/ManuGH/wabridge/internal/metrics"
)

const driverName = "redis"

// Config configures the Redis transport.
type Config struct {
	Routing        broker.Routing
	ReconnectDelay time.Duration
	Clock          clock.Clock
	Logger         zerolog.Logger
}

type Transport struct {
	client redis.UniversalClient
	cfg    Config
	logger zerolog.Logger

	connected atomic.Bool
	closed    atomic.Bool
}

var _ broker.Transport = (*Transport)(nil)

// New wraps an existing client. The client is shared with the profile cache,
// so Close does not close it.
func New(client redis.UniversalClient, cfg Config) (*Transport, error) {
	if client == nil {
		return nil, errors.New("redis: client is required")
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Routing == (broker.Routing{}) {
		cfg.Routing = broker.DefaultRouting()
	}
	return &Transport{
		client: client,
		cfg:    cfg,
		logger: cfg.Logger.With().Str(xlog.FieldComponent, "broker.redis").Logger(),
	}, nil
}

// Connect pings until the server answers or ctx is done.
func (t *Transport) Connect(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		if t.closed.Load() {
			return broker.ErrClosed
		}
		err := t.client.Ping(ctx).Err()
		if err == nil {
			t.setConnected(true)
			return nil
		}
		t.setConnected(false)
		metrics.IncBrokerReconnect(driverName)
		t.logger.Warn().Err(err).
			Int(xlog.FieldAttempt, attempt).
			Dur(xlog.FieldDelay, t.cfg.ReconnectDelay).
			Str(xlog.FieldEvent, "broker.connect_failed").
			Msg("redis unreachable, retrying")
		if err := t.cfg.Clock.Sleep(ctx, t.cfg.ReconnectDelay); err != nil {
			return err
		}
	}
}

func (t *Transport) setConnected(up bool) {
	t.connected.Store(up)
	metrics.SetBrokerConnected(driverName, up)
}

// PublishEvent publishes the JSON envelope on the routing key channel.
func (t *Transport) PublishEvent(ctx context.Context, routingKey string, env broker.Envelope) (err error) {
	defer func() { metrics.RecordPublish(driverName, err) }()
	if t.closed.Load() {
		return broker.ErrClosed
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := t.client.Publish(ctx, routingKey, body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

// ConsumeCommands pattern-subscribes to the command bindings until ctx is done.
func (t *Transport) ConsumeCommands(ctx context.Context, h broker.Handler) error {
	patterns := make([]string, 0, 2)
	for _, b := range t.cfg.Routing.CommandBindings() {
		patterns = append(patterns, broker.GlobPattern(b))
	}

	for {
		if err := t.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		err := t.consumeOnce(ctx, patterns, h)
		if ctx.Err() != nil || t.closed.Load() {
			return nil
		}
		t.setConnected(false)
		t.logger.Warn().Err(err).
			Str(xlog.FieldEvent, "broker.consume_interrupted").
			Msg("command subscription interrupted, resubscribing")
		if err := t.cfg.Clock.Sleep(ctx, t.cfg.ReconnectDelay); err != nil {
			return nil
		}
	}
}

func (t *Transport) consumeOnce(ctx context.Context, patterns []string, h broker.Handler) error {
	ps := t.client.PSubscribe(ctx, patterns...)
	defer func() { _ = ps.Close() }()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("psubscribe: %w", err)
	}
	t.logger.Info().Strs("patterns", patterns).
		Str(xlog.FieldEvent, "broker.consuming").
		Msg("consuming commands")

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("subscription channel closed")
			}
			if !t.cfg.Routing.MatchesCommand(msg.Channel) {
				metrics.RecordDelivery(driverName, "ignored")
				continue
			}
			l := t.logger.With().Str(xlog.FieldRoutingKey, msg.Channel).Logger()
			broker.Deliver(ctx, driverName, l, []byte(msg.Payload), h)
		}
	}
}

func (t *Transport) Connected() bool {
	return t.connected.Load() && !t.closed.Load()
}

// Close stops publishing. Active consumers return once their context is done.
func (t *Transport) Close() error {
	t.closed.Store(true)
	t.setConnected(false)
	return nil
}
