// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package memory is an in-process topic exchange used by tests and by the
// "memory" broker driver for local runs.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ManuGH/wabridge/internal/broker"
	xlog "github.com/ManuGH/wabridge/internal/log"
	"github.com/ManuGH/wabridge/internal/metrics"
)

const (
	driverName     = "memory"
	dropLogEvery   = 100
	subscriberBuf  = 256
	commandBufSize = 256
)

var dropCount atomic.Uint64

// Message is one published event.
type Message struct {
	RoutingKey string
	Envelope   broker.Envelope
}

type delivery struct {
	key  string
	body []byte
	done chan broker.Outcome
}

// Bus is not durable. Events are fanned out to matching subscribers and kept
// in an in-memory log; commands are queued for ConsumeCommands.
type Bus struct {
	routing broker.Routing
	logger  zerolog.Logger

	mu        sync.RWMutex
	subs      []*Subscription
	published []Message
	closed    bool

	connected atomic.Bool
	commands  chan delivery
}

var _ broker.Transport = (*Bus)(nil)

// New returns a bus using routing for command bindings.
func New(routing broker.Routing) *Bus {
	if routing == (broker.Routing{}) {
		routing = broker.DefaultRouting()
	}
	return &Bus{
		routing:  routing,
		logger:   xlog.WithComponent("broker.memory"),
		commands: make(chan delivery, commandBufSize),
	}
}

func (b *Bus) Connect(ctx context.Context) error {
	if b.isClosed() {
		return broker.ErrClosed
	}
	b.connected.Store(true)
	metrics.SetBrokerConnected(driverName, true)
	return ctx.Err()
}

func (b *Bus) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

func publishDropReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "context_done"
	}
}

// PublishEvent records the event and blocks until every matching subscriber
// accepted it or ctx is done.
func (b *Bus) PublishEvent(ctx context.Context, routingKey string, env broker.Envelope) (err error) {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}
	defer func() { metrics.RecordPublish(driverName, err) }()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return broker.ErrClosed
	}
	msg := Message{RoutingKey: routingKey, Envelope: env}
	b.published = append(b.published, msg)
	var targets []*Subscription
	for _, s := range b.subs {
		if broker.MatchTopic(s.pattern, routingKey) {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()

	for _, s := range targets {
		if err := s.send(ctx, msg); err != nil {
			reason := publishDropReason(err)
			metrics.IncBusDropReason(reason)
			if count := dropCount.Add(1); count%dropLogEvery == 0 {
				b.logger.Warn().
					Str(xlog.FieldRoutingKey, routingKey).
					Str(xlog.FieldReason, reason).
					Uint64("dropped", count).
					Msg("memory bus failed to publish due to context cancellation")
			}
			return fmt.Errorf("publish %q: %w", routingKey, err)
		}
	}
	return nil
}

// Subscribe receives every event whose routing key matches pattern.
func (b *Bus) Subscribe(pattern string) *Subscription {
	s := &Subscription{bus: b, pattern: pattern, ch: make(chan Message, subscriberBuf), done: make(chan struct{})}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.closeChan()
		return s
	}
	b.subs = append(b.subs, s)
	return s
}

// Published returns a copy of every event published so far.
func (b *Bus) Published() []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Message(nil), b.published...)
}

// Events returns the published events of one envelope type.
func (b *Bus) Events(eventType string) []Message {
	var out []Message
	for _, m := range b.Published() {
		if m.Envelope.Type == eventType {
			out = append(out, m)
		}
	}
	return out
}

// Send queues a command as JSON. Keys outside the command bindings are
// dropped, as an unbound topic exchange would.
func (b *Bus) Send(ctx context.Context, routingKey string, env broker.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	_, err = b.enqueue(ctx, routingKey, body, false)
	return err
}

// SendRaw queues body as is and waits for the consumer to settle it.
func (b *Bus) SendRaw(ctx context.Context, routingKey string, body []byte) (broker.Outcome, error) {
	return b.enqueue(ctx, routingKey, body, true)
}

func (b *Bus) enqueue(ctx context.Context, key string, body []byte, wait bool) (broker.Outcome, error) {
	if b.isClosed() {
		return "", broker.ErrClosed
	}
	if !b.routing.MatchesCommand(key) {
		metrics.RecordDelivery(driverName, "unrouted")
		return "", nil
	}
	d := delivery{key: key, body: body}
	if wait {
		d.done = make(chan broker.Outcome, 1)
	}
	select {
	case b.commands <- d:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if !wait {
		return "", nil
	}
	select {
	case out := <-d.done:
		return out, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ConsumeCommands drains queued commands until ctx is done.
func (b *Bus) ConsumeCommands(ctx context.Context, h broker.Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-b.commands:
			l := b.logger.With().Str(xlog.FieldRoutingKey, d.key).Logger()
			out := broker.Deliver(ctx, driverName, l, d.body, h)
			if d.done != nil {
				d.done <- out
			}
		}
	}
}

func (b *Bus) Connected() bool {
	return b.connected.Load() && !b.isClosed()
}

// Close closes every subscription. Published events stay readable.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, s := range subs {
		s.closeChan()
	}
	b.connected.Store(false)
	metrics.SetBrokerConnected(driverName, false)
	return nil
}

// Subscription is a live pattern subscription.
type Subscription struct {
	bus     *Bus
	pattern string

	mu     sync.Mutex
	ch     chan Message
	closed bool
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) C() <-chan Message {
	return s.ch
}

func (s *Subscription) send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	select {
	case s.ch <- msg:
		return nil
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() error {
	b := s.bus
	b.mu.Lock()
	out := b.subs[:0]
	for _, c := range b.subs {
		if c != s {
			out = append(out, c)
		}
	}
	b.subs = out
	b.mu.Unlock()
	s.closeChan()
	return nil
}

func (s *Subscription) closeChan() {
	// unblock a pending send before taking mu
	s.once.Do(func() { close(s.done) })
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
