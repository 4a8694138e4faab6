// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		tenant  string
		ts      time.Time
		wantErr bool
	}{
		{
			name:   "rfc3339 timestamp",
			body:   `{"id":"1","timestamp":"2025-03-01T10:00:00.250Z","tenantId":"t1","type":"session.start","payload":{"sessionId":"s1"}}`,
			tenant: "t1",
			ts:     time.Date(2025, 3, 1, 10, 0, 0, 250e6, time.UTC),
		},
		{
			name:   "unix millis and numeric tenant",
			body:   `{"id":"2","timestamp":1700000000123,"tenantId":42,"type":"session.stop","payload":{}}`,
			tenant: "42",
			ts:     time.UnixMilli(1700000000123).UTC(),
		},
		{
			name:   "missing timestamp",
			body:   `{"id":"3","tenantId":"t","type":"contact.import"}`,
			tenant: "t",
		},
		{name: "invalid json", body: `{"id":`, wantErr: true},
		{name: "missing type", body: `{"id":"4","tenantId":"t"}`, wantErr: true},
		{name: "bad timestamp", body: `{"type":"x","timestamp":"yesterday"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Decode([]byte(tt.body))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedEnvelope)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.tenant, env.TenantID)
			assert.True(t, tt.ts.Equal(env.Timestamp.Time), "got %v", env.Timestamp.Time)
		})
	}
}

func TestTimestamp_EncodesUTCMillis(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	ts := NewTimestamp(time.Date(2025, 1, 2, 3, 4, 5, 678901234, loc))

	b, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2025-01-02T06:04:05.678Z"`, string(b))

	b, err = json.Marshal(Timestamp{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))
}

func TestDeliver(t *testing.T) {
	logger := zerolog.Nop()
	valid := []byte(`{"id":"1","tenantId":"t","type":"session.start","payload":{}}`)

	var got Envelope
	out := Deliver(context.Background(), "test", logger, valid, func(_ context.Context, env Envelope) error {
		got = env
		return nil
	})
	assert.Equal(t, OutcomeAck, out)
	assert.Equal(t, "session.start", got.Type)

	out = Deliver(context.Background(), "test", logger, []byte("nope"), func(context.Context, Envelope) error {
		t.Fatal("handler must not run for malformed bodies")
		return nil
	})
	assert.Equal(t, OutcomeNackDecode, out)

	out = Deliver(context.Background(), "test", logger, valid, func(context.Context, Envelope) error {
		return errors.New("unknown command")
	})
	assert.Equal(t, OutcomeNackHandler, out)

	out = Deliver(context.Background(), "test", logger, valid, func(context.Context, Envelope) error {
		panic("boom")
	})
	assert.Equal(t, OutcomeNackHandler, out)
}
