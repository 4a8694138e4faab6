// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package broker defines the envelope format and the transport contract shared
// by the AMQP, Redis and in-memory drivers.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrNotConnected      = errors.New("broker not connected")
	ErrClosed            = errors.New("broker closed")
)

// Envelope wraps every inbound command and outbound event.
type Envelope struct {
	ID        string          `json:"id"`
	Timestamp Timestamp       `json:"timestamp"`
	TenantID  string          `json:"tenantId"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

// UnmarshalJSON accepts tenantId as either a string or a number.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	type alias Envelope
	var raw struct {
		alias
		TenantID json.RawMessage `json:"tenantId"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Envelope(raw.alias)
	tenant, err := flexString(raw.TenantID)
	if err != nil {
		return fmt.Errorf("tenantId: %w", err)
	}
	e.TenantID = tenant
	return nil
}

func flexString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// Decode parses a raw delivery body. Envelopes without a type are rejected.
func Decode(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if strings.TrimSpace(env.Type) == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}
	return env, nil
}

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp decodes RFC 3339 strings or unix milliseconds and always encodes
// as RFC 3339 in UTC with millisecond precision.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp { return Timestamp{Time: t.UTC().Truncate(time.Millisecond)} }

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.UTC().Format(timestampLayout))), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if data[0] != '"' {
		ms, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(string(data), 64)
			if ferr != nil {
				return fmt.Errorf("timestamp: %w", err)
			}
			ms = int64(f)
		}
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	t.Time = parsed.UTC()
	return nil
}

// Handler processes one decoded command envelope. A returned error makes the
// transport drop the delivery without redelivery.
type Handler func(ctx context.Context, env Envelope) error

// Transport hides the publish/subscribe broker.
type Transport interface {
	// Connect blocks until the broker is reachable, retrying on a fixed delay
	// until ctx is done.
	Connect(ctx context.Context) error
	PublishEvent(ctx context.Context, routingKey string, env Envelope) error
	// ConsumeCommands runs until ctx is done and re-establishes consumption
	// after connection loss.
	ConsumeCommands(ctx context.Context, h Handler) error
	Close() error
	Connected() bool
}
