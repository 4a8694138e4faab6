// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/wabridge/internal/broker"
	"github.com/ManuGH/wabridge/internal/broker/memory"
	"github.com/ManuGH/wabridge/internal/clock"
	"github.com/ManuGH/wabridge/internal/credstore"
	"github.com/ManuGH/wabridge/internal/domain/session/command"
	"github.com/ManuGH/wabridge/internal/domain/session/event"
	"github.com/ManuGH/wabridge/internal/domain/session/model"
	"github.com/ManuGH/wabridge/internal/protocol/protocoltest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	tenant  = "t1"
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	t     *testing.T
	orch  *Orchestrator
	conn  *protocoltest.Connector
	bus   *memory.Bus
	clock *clock.Fake
	creds *credstore.Store
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	return newHarnessWith(t, nil, mutate...)
}

// newHarnessWith lets a test replace optional dependencies before New runs.
func newHarnessWith(t *testing.T, withDeps func(*Deps), mutate ...func(*Config)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ReconnectBase = 2 * time.Second
	for _, m := range mutate {
		m(&cfg)
	}

	clk := clock.NewFake(epoch)
	bus := memory.New(broker.DefaultRouting())
	require.NoError(t, bus.Connect(context.Background()))
	store, err := credstore.New(filepath.Join(t.TempDir(), "sessions"))
	require.NoError(t, err)
	conn := protocoltest.NewConnector()
	pub := event.NewPublisher(bus, broker.DefaultRouting(), event.WithClock(clk), event.WithQRImages(false))

	deps := Deps{Connector: conn, Credentials: store, Events: pub, Clock: clk}
	if withDeps != nil {
		withDeps(&deps)
	}
	o, err := New(cfg, deps)
	require.NoError(t, err)

	h := &harness{t: t, orch: o, conn: conn, bus: bus, clock: clk, creds: store}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		require.NoError(t, o.Shutdown(ctx))
		_ = bus.Close()
	})
	return h
}

func (h *harness) start(c command.StartSession) {
	h.t.Helper()
	require.NoError(h.t, h.orch.Start(context.Background(), tenant, c))
}

func (h *harness) stop(sessionID string) {
	h.t.Helper()
	require.NoError(h.t, h.orch.Stop(context.Background(), tenant, command.StopSession{SessionID: sessionID}))
}

// startConnected starts a QR-mode session and waits for CONNECTED.
func (h *harness) startConnected(sessionID string) *protocoltest.Client {
	h.t.Helper()
	h.start(command.StartSession{SessionID: sessionID})
	h.waitStatus(sessionID, model.StatusConnected, 1)
	return h.conn.Last()
}

func decodeAll[T any](t *testing.T, msgs []memory.Message) []T {
	t.Helper()
	out := make([]T, 0, len(msgs))
	for _, m := range msgs {
		var v T
		require.NoError(t, json.Unmarshal(m.Envelope.Payload, &v))
		out = append(out, v)
	}
	return out
}

func (h *harness) statuses(sessionID string) []model.Status {
	var out []model.Status
	for _, p := range decodeAll[event.StatusPayload](h.t, h.bus.Events(event.TypeSessionStatus)) {
		if p.SessionID == sessionID {
			out = append(out, p.Status)
		}
	}
	return out
}

func (h *harness) countStatus(sessionID string, status model.Status) int {
	n := 0
	for _, s := range h.statuses(sessionID) {
		if s == status {
			n++
		}
	}
	return n
}

// waitStatus waits until status was emitted at least n times for sessionID.
func (h *harness) waitStatus(sessionID string, status model.Status, n int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return h.countStatus(sessionID, status) >= n
	}, waitFor, tick, "waiting for %d x %s on %s, have %v", n, status, sessionID, h.statuses(sessionID))
}

func (h *harness) acks() []event.AckPayload {
	return decodeAll[event.AckPayload](h.t, h.bus.Events(event.TypeMessageAck))
}

func (h *harness) messages() []event.MessagePayload {
	return decodeAll[event.MessagePayload](h.t, h.bus.Events(event.TypeMessageReceived))
}

func (h *harness) waitMessages(n int) []event.MessagePayload {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return len(h.bus.Events(event.TypeMessageReceived)) >= n }, waitFor, tick)
	return h.messages()
}

func (h *harness) entry(sessionID string) *sessionEntry {
	h.t.Helper()
	e, ok := h.orch.registry.get(sessionID)
	require.True(h.t, ok, "session %s not registered", sessionID)
	return e
}

// drain waits for every background worker, which makes "nothing happened"
// assertions deterministic.
func (h *harness) drain() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(h.t, h.orch.Shutdown(ctx))
}
