// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package model holds the session engine's value types.
package model

// Status is the client-visible connection state of a session.
type Status string

const (
	StatusOpening      Status = "OPENING"
	StatusConnected    Status = "CONNECTED"
	StatusDisconnected Status = "DISCONNECTED"
)

// Ack is the public delivery acknowledgement scale for outbound messages.
type Ack int

const (
	AckPending   Ack = 0
	AckSent      Ack = 1
	AckDelivered Ack = 2
	AckRead      Ack = 3
	AckPlayed    Ack = 4
	AckError     Ack = 5
)

// Protocol-level message status codes as reported by the protocol adapter.
const (
	ProtoStatusError       = 0
	ProtoStatusPending     = 1
	ProtoStatusServerAck   = 2
	ProtoStatusDeliveryAck = 3
	ProtoStatusRead        = 4
	ProtoStatusPlayed      = 5
)

var ackByProtoStatus = map[int]Ack{
	ProtoStatusError:       AckError,
	ProtoStatusPending:     AckPending,
	ProtoStatusServerAck:   AckSent,
	ProtoStatusDeliveryAck: AckDelivered,
	ProtoStatusRead:        AckRead,
	ProtoStatusPlayed:      AckPlayed,
}

// AckFromProtocol maps a protocol status code to the public ack value.
// ok is false for codes outside the known range; those produce no ack event.
func AckFromProtocol(code int) (ack Ack, ok bool) {
	ack, ok = ackByProtoStatus[code]
	return ack, ok
}
