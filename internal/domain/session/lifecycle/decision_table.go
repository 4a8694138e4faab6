// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package lifecycle decides what happens to a session after its protocol
// connection closes, and how long to wait before reconnecting.
package lifecycle

import "github.com/ManuGH/wabridge/internal/domain/session/model"

// Action is what the orchestrator does after a close.
type Action int

const (
	// ActionReconnect schedules another attempt through the backoff policy.
	ActionReconnect Action = iota
	// ActionTerminate emits terminal DISCONNECTED and forgets the session.
	ActionTerminate
)

func (a Action) String() string {
	if a == ActionTerminate {
		return "terminate"
	}
	return "reconnect"
}

// Decision is the outcome of classifying a close.
type Decision struct {
	Action Action
	// WipeCredentials is set for corrupted sessions so that any retry starts clean.
	WipeCredentials bool
	// Retryable is false for reasons that must not be retried by default.
	Retryable bool
}

// CloseInput is everything that influences the decision.
type CloseInput struct {
	Reason           model.DisconnectReason
	ManualDisconnect bool
	KeepAlive        bool
}

// terminalReasons are never retried, not even under keepAlive: the account
// itself has to be re-linked.
var terminalReasons = map[model.DisconnectReason]bool{
	model.ReasonLoggedOut:      true,
	model.ReasonForbidden:      true,
	model.ReasonClientOutdated: true,
}

// Classify returns the decision for a connection close. The manual-disconnect
// marker always wins.
func Classify(in CloseInput) Decision {
	if in.ManualDisconnect {
		return Decision{Action: ActionTerminate}
	}
	if terminalReasons[in.Reason] {
		return Decision{Action: ActionTerminate}
	}
	if in.Reason == model.ReasonBadSession {
		d := Decision{Action: ActionTerminate, WipeCredentials: true}
		if in.KeepAlive {
			d.Action = ActionReconnect
		}
		return d
	}
	return Decision{Action: ActionReconnect, Retryable: true}
}
