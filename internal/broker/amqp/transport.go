// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package amqp implements broker.Transport on RabbitMQ topic exchanges.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/ManuGH/wabridge/internal/broker"
	"github.com/ManuGH/wabridge/internal/clock"
	xlog "github.com/ManuGH/wabridge/internal/log"
	"github.com/ManuGH/wabridge/internal/metrics"
)

const driverName = "amqp"

// Config configures the AMQP transport.
type Config struct {
	URL             string
	CommandExchange string
	EventExchange   string
	Routing         broker.Routing
	ReconnectDelay  time.Duration
	Prefetch        int
	ConnectionName  string
	Clock           clock.Clock
	Logger          zerolog.Logger
}

// dialer is swapped in tests.
type dialer func(url string, cfg amqp.Config) (*amqp.Connection, error)

// Transport owns one connection, one publishing channel and, while consuming,
// one consumer channel with an exclusive auto-delete queue.
type Transport struct {
	cfg    Config
	dial   dialer
	logger zerolog.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	pub    *amqp.Channel
	closed bool

	connected atomic.Bool
}

var _ broker.Transport = (*Transport)(nil)

// New validates cfg and returns an unconnected transport.
func New(cfg Config) (*Transport, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp: url is required")
	}
	if cfg.CommandExchange == "" || cfg.EventExchange == "" {
		return nil, errors.New("amqp: command and event exchanges are required")
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 32
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Routing == (broker.Routing{}) {
		cfg.Routing = broker.DefaultRouting()
	}
	return &Transport{
		cfg:    cfg,
		dial:   amqp.DialConfig,
		logger: cfg.Logger.With().Str(xlog.FieldComponent, "broker.amqp").Logger(),
	}, nil
}

// Connect dials until it succeeds or ctx is done.
func (t *Transport) Connect(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		err := t.connectOnce()
		if err == nil {
			return nil
		}
		if errors.Is(err, broker.ErrClosed) {
			return err
		}
		metrics.IncBrokerReconnect(driverName)
		t.logger.Warn().Err(err).
			Int(xlog.FieldAttempt, attempt).
			Dur(xlog.FieldDelay, t.cfg.ReconnectDelay).
			Str(xlog.FieldEvent, "broker.connect_failed").
			Msg("broker unreachable, retrying")
		if err := t.cfg.Clock.Sleep(ctx, t.cfg.ReconnectDelay); err != nil {
			return err
		}
	}
}

func (t *Transport) connectOnce() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return broker.ErrClosed
	}
	if t.conn != nil && !t.conn.IsClosed() {
		return nil
	}

	props := amqp.NewConnectionProperties()
	if t.cfg.ConnectionName != "" {
		props.SetClientConnectionName(t.cfg.ConnectionName)
	}
	conn, err := t.dial(t.cfg.URL, amqp.Config{Heartbeat: 10 * time.Second, Properties: props})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := t.declareExchanges(ch); err != nil {
		_ = conn.Close()
		return err
	}

	t.conn = conn
	t.pub = ch
	t.connected.Store(true)
	metrics.SetBrokerConnected(driverName, true)
	t.logger.Info().Str(xlog.FieldEvent, "broker.connected").Msg("connected to broker")

	closes := conn.NotifyClose(make(chan *amqp.Error, 1))
	go t.watch(conn, closes)
	return nil
}

func (t *Transport) declareExchanges(ch *amqp.Channel) error {
	for _, name := range []string{t.cfg.CommandExchange, t.cfg.EventExchange} {
		if err := ch.ExchangeDeclare(name, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %q: %w", name, err)
		}
	}
	return nil
}

func (t *Transport) watch(conn *amqp.Connection, closes <-chan *amqp.Error) {
	reason, ok := <-closes
	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
		t.pub = nil
		t.connected.Store(false)
		metrics.SetBrokerConnected(driverName, false)
	}
	closed := t.closed
	t.mu.Unlock()

	if closed {
		return
	}
	ev := t.logger.Warn().Str(xlog.FieldEvent, "broker.connection_lost")
	if ok && reason != nil {
		ev = ev.Err(reason)
	}
	ev.Msg("broker connection lost")
}

// PublishEvent publishes env as a persistent JSON message on the event exchange.
func (t *Transport) PublishEvent(ctx context.Context, routingKey string, env broker.Envelope) (err error) {
	defer func() { metrics.RecordPublish(driverName, err) }()

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	t.mu.Lock()
	ch := t.pub
	t.mu.Unlock()
	if ch == nil {
		return broker.ErrNotConnected
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.ID,
		Timestamp:    env.Timestamp.Time,
		Type:         env.Type,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, t.cfg.EventExchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

// ConsumeCommands consumes until ctx is done. Lost connections are redialed
// after ReconnectDelay, forever.
func (t *Transport) ConsumeCommands(ctx context.Context, h broker.Handler) error {
	for {
		if err := t.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		err := t.consumeOnce(ctx, h)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, broker.ErrClosed) {
			return err
		}
		t.logger.Warn().Err(err).
			Dur(xlog.FieldDelay, t.cfg.ReconnectDelay).
			Str(xlog.FieldEvent, "broker.consume_interrupted").
			Msg("command consumption interrupted, resubscribing")
		t.dropConnection()
		if err := t.cfg.Clock.Sleep(ctx, t.cfg.ReconnectDelay); err != nil {
			return nil
		}
	}
}

func (t *Transport) consumeOnce(ctx context.Context, h broker.Handler) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return broker.ErrNotConnected
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(t.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	for _, key := range t.cfg.Routing.CommandBindings() {
		if err := ch.QueueBind(q.Name, key, t.cfg.CommandExchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	deliveries, err := ch.Consume(q.Name, "", false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	t.logger.Info().
		Str("queue", q.Name).
		Strs("bindings", t.cfg.Routing.CommandBindings()).
		Str(xlog.FieldEvent, "broker.consuming").
		Msg("consuming commands")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			t.handleDelivery(ctx, d, h)
		}
	}
}

// handleDelivery settles d: ack on success, nack without requeue otherwise.
func (t *Transport) handleDelivery(ctx context.Context, d amqp.Delivery, h broker.Handler) {
	l := t.logger.With().Str(xlog.FieldRoutingKey, d.RoutingKey).Logger()
	var err error
	switch broker.Deliver(ctx, driverName, l, d.Body, h) {
	case broker.OutcomeAck:
		err = d.Ack(false)
	default:
		err = d.Nack(false, false)
	}
	if err != nil {
		l.Warn().Err(err).Uint64("delivery_tag", d.DeliveryTag).Msg("failed to settle delivery")
	}
}

func (t *Transport) dropConnection() {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.pub = nil
	t.connected.Store(false)
	t.mu.Unlock()
	metrics.SetBrokerConnected(driverName, false)
	if conn != nil {
		_ = conn.Close()
	}
}

// Connected reports whether a live connection is held.
func (t *Transport) Connected() bool {
	return t.connected.Load()
}

// Close releases the connection. The transport cannot be reused afterwards.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	t.pub = nil
	t.connected.Store(false)
	t.mu.Unlock()

	metrics.SetBrokerConnected(driverName, false)
	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return nil
}
