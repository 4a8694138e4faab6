// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package event

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/wabridge/internal/broker"
	"github.com/ManuGH/wabridge/internal/broker/memory"
	"github.com/ManuGH/wabridge/internal/clock"
	"github.com/ManuGH/wabridge/internal/domain/session/model"
)

func newTestPublisher(t *testing.T) (*Publisher, *memory.Bus) {
	t.Helper()
	bus := memory.New(broker.DefaultRouting())
	t.Cleanup(func() { _ = bus.Close() })
	clk := clock.NewFake(time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC))
	n := 0
	p := NewPublisher(bus, broker.DefaultRouting(),
		WithClock(clk),
		WithIDGenerator(func() string { n++; return "evt-" + string(rune('0'+n)) }),
	)
	return p, bus
}

func TestPublisher_StatusEnvelope(t *testing.T) {
	p, bus := newTestPublisher(t)

	require.NoError(t, p.Status(context.Background(), "t1", StatusPayload{
		SessionID: "s1", Status: model.StatusConnected, Number: "5511999999999",
	}))

	msgs := bus.Published()
	require.Len(t, msgs, 1)
	assert.Equal(t, "wa.evt.t1.s1.session.status", msgs[0].RoutingKey)

	env := msgs[0].Envelope
	assert.Equal(t, "evt-1", env.ID)
	assert.Equal(t, "t1", env.TenantID)
	assert.Equal(t, TypeSessionStatus, env.Type)
	assert.JSONEq(t, `{"sessionId":"s1","status":"CONNECTED","number":"5511999999999"}`, string(env.Payload))

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"timestamp":"2025-05-01T12:00:00.000Z"`)
}

func TestPublisher_PayloadShapes(t *testing.T) {
	p, bus := newTestPublisher(t)
	ctx := context.Background()
	progress := 40

	require.NoError(t, p.Ack(ctx, "t1", AckPayload{SessionID: "s1", MessageID: "abc", Ack: model.AckError}))
	require.NoError(t, p.Reaction(ctx, "t1", ReactionPayload{SessionID: "s1", MessageID: "m1", From: "5511", Reaction: "👍", Timestamp: 1700000000}))
	require.NoError(t, p.ContactUpdate(ctx, "t1", ContactPayload{SessionID: "s1", ID: "5511@s.whatsapp.net", ContactID: json.RawMessage(`42`)}))
	require.NoError(t, p.HistoryStatus(ctx, "t1", HistoryPayload{SessionID: "s1", Status: HistoryInProgress, Progress: &progress}))
	require.NoError(t, p.PairingCode(ctx, "t1", PairingCodePayload{SessionID: "s1", PairingCode: "ABCD-1234", PhoneNumber: "5511"}))

	want := map[string]string{
		TypeMessageAck:         `{"sessionId":"s1","messageId":"abc","ack":5}`,
		TypeMessageReaction:    `{"sessionId":"s1","messageId":"m1","from":"5511","reaction":"👍","fromMe":false,"timestamp":1700000000}`,
		TypeContactUpdate:      `{"sessionId":"s1","id":"5511@s.whatsapp.net","contactId":42,"isGroup":false}`,
		TypeHistoryStatus:      `{"sessionId":"s1","status":"in_progress","progress":40}`,
		TypeSessionPairingCode: `{"sessionId":"s1","pairingCode":"ABCD-1234","phoneNumber":"5511"}`,
	}
	got := map[string]string{}
	for _, m := range bus.Published() {
		got[m.Envelope.Type] = string(m.Envelope.Payload)
	}
	for typ, body := range want {
		assert.JSONEq(t, body, got[typ], typ)
	}
}

func TestPublisher_QRCodeDataURL(t *testing.T) {
	p, bus := newTestPublisher(t)
	require.NoError(t, p.QRCode(context.Background(), "t1", "s1", "2@abc,def,ghi"))

	var pl QRCodePayload
	require.NoError(t, json.Unmarshal(bus.Published()[0].Envelope.Payload, &pl))
	assert.Equal(t, "2@abc,def,ghi", pl.QRCode)
	assert.True(t, strings.HasPrefix(pl.QRCodeDataURL, "data:image/png;base64,"))
}

func TestPublisher_MessageReceivedOmitsEmptyOptionals(t *testing.T) {
	p, bus := newTestPublisher(t)
	pl := MessagePayload{SessionID: "s1", ID: "m1", From: "5511@s.whatsapp.net", Body: "hi", Type: "chat", Timestamp: 1700000000}
	require.NoError(t, p.MessageReceived(context.Background(), "t1", pl))

	var got map[string]any
	require.NoError(t, json.Unmarshal(bus.Published()[0].Envelope.Payload, &got))
	for _, k := range []string{"mediaData", "originalId", "quotedMsg", "urlPreview", "senderLid"} {
		_, ok := got[k]
		assert.False(t, ok, k)
	}
	for _, k := range []string{"pushName", "participant", "hasMedia", "fromMe"} {
		_, ok := got[k]
		assert.True(t, ok, k)
	}

	var back MessagePayload
	require.NoError(t, json.Unmarshal(bus.Published()[0].Envelope.Payload, &back))
	if diff := cmp.Diff(pl, back); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestPublisher_TransportErrorIsReturned(t *testing.T) {
	p, bus := newTestPublisher(t)
	require.NoError(t, bus.Close())
	err := p.Status(context.Background(), "t1", StatusPayload{SessionID: "s1", Status: model.StatusOpening})
	assert.ErrorIs(t, err, broker.ErrClosed)
}

func TestPublisher_IgnoresCallerCancellation(t *testing.T) {
	p, bus := newTestPublisher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Status(ctx, "t1", StatusPayload{SessionID: "s1", Status: model.StatusDisconnected}))
	assert.Len(t, bus.Published(), 1)
}
