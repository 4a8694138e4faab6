// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import (
	"time"

	"github.com/ManuGH/wabridge/internal/domain/session/model"
)

// Event is the closed set of things a protocol client reports.
type Event interface {
	protocolEvent()
}

// ConnectionOpened means the client is logged in and online.
type ConnectionOpened struct{}

// ConnectionClosed means the connection ended. Err carries adapter detail, if any.
type ConnectionClosed struct {
	Reason model.DisconnectReason
	Err    error
}

// QRCode carries a login QR payload (one per rotation).
type QRCode struct {
	Code string
}

// CredentialsUpdated reports changed auth state (pairing success, push name).
type CredentialsUpdated struct {
	State AuthState
}

// MessageReceived carries one inbound (or self-sent, echoed) message.
type MessageReceived struct {
	Message InboundMessage
}

// AckUpdate reports a delivery status change for one or more messages.
// Status uses the protocol status codes of model.ProtoStatus*; other values
// are ignored.
type AckUpdate struct {
	Chat       string
	MessageIDs []string
	Status     int
}

// Reaction is an emoji reaction to a message. An empty Emoji removes it.
type Reaction struct {
	Chat      string
	Sender    string
	MessageID string
	Emoji     string
	FromMe    bool
	Timestamp time.Time
}

// ContactUpdated reports a changed contact or push name.
type ContactUpdated struct {
	JID      string
	Name     string
	PushName string
}

// GroupUpdated reports changed group metadata.
type GroupUpdated struct {
	JID  string
	Name string
}

// HistoryBatch carries messages from a protocol-initiated history sync.
type HistoryBatch struct {
	Messages []InboundMessage
	Progress int
}

func (ConnectionOpened) protocolEvent()   {}
func (ConnectionClosed) protocolEvent()   {}
func (QRCode) protocolEvent()             {}
func (CredentialsUpdated) protocolEvent() {}
func (MessageReceived) protocolEvent()    {}
func (AckUpdate) protocolEvent()          {}
func (Reaction) protocolEvent()           {}
func (ContactUpdated) protocolEvent()     {}
func (GroupUpdated) protocolEvent()       {}
func (HistoryBatch) protocolEvent()       {}
