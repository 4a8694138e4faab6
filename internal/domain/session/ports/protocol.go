// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ports defines the narrow capability interfaces the session
// orchestrator drives. Implementations live outside the domain.
package ports

import (
	"context"
	"time"
)

// Connector creates protocol clients. One Connector serves every session.
type Connector interface {
	// Version reports the protocol version the adapter will announce.
	Version(ctx context.Context) (string, error)
	// Open prepares a client for cfg without touching the network.
	Open(ctx context.Context, cfg ConnectConfig) (Client, error)
}

// ConnectConfig is everything a client needs to bring one session online.
type ConnectConfig struct {
	SessionID string
	// Dir is the session's credential directory; the adapter may keep its own
	// opaque state there.
	Dir  string
	Auth AuthState
	// SaveCredentials persists credential mutations. It is wired before Connect.
	SaveCredentials func(AuthState) error

	// The device name is not carried here: protocol libraries announce it
	// per process. Pairing-code logins pass their display name to
	// RequestPairingCode instead.
	PairingCode bool
	PhoneNumber string
	SyncHistory bool
}

// Client is a live protocol connection for one session. Events are delivered
// in protocol order on a single channel, which is closed after Close.
type Client interface {
	Events() <-chan Event
	Connect(ctx context.Context) error
	Close() error
	Logout(ctx context.Context) error

	RequestPairingCode(ctx context.Context, phone, clientName string) (string, error)

	// ResolveRecipient validates to (and the optional long-lived id) against
	// the protocol directory and returns the address to send to.
	ResolveRecipient(ctx context.Context, to, lid string) (string, error)
	GenerateMessageID() string
	Send(ctx context.Context, to string, content Content, opts SendOptions) (SendResult, error)
	MarkRead(ctx context.Context, chat string, ids []string) error

	Self() Identity
	ProfilePictureURL(ctx context.Context, jid string) (string, error)
	ResolveLID(ctx context.Context, jid string) (string, error)
	GroupName(ctx context.Context, jid string) (string, error)
	DownloadMedia(ctx context.Context, media *Media) ([]byte, error)
}

// Identity is the account a client is logged in as.
type Identity struct {
	JID      string
	LID      string
	PushName string
}

// SendOptions carries per-send overrides.
type SendOptions struct {
	MessageID string
}

// SendResult reports what the server accepted.
type SendResult struct {
	ID        string
	Timestamp time.Time
}

// AuthState is the orchestrator-visible part of a session's credentials.
// Protocol key material stays in the adapter's own store inside the
// credential directory.
type AuthState struct {
	Registered  bool      `json:"registered"`
	JID         string    `json:"jid,omitempty"`
	LID         string    `json:"lid,omitempty"`
	PushName    string    `json:"pushName,omitempty"`
	Platform    string    `json:"platform,omitempty"`
	PairingMode bool      `json:"pairingMode,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

// CredentialStore persists AuthState in one directory per session.
type CredentialStore interface {
	Dir(sessionID string) (string, error)
	Load(sessionID string) (AuthState, error)
	Save(sessionID string, state AuthState) error
	Wipe(sessionID string) error
}
