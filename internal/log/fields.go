// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID     = "session_id"
	FieldTenantID      = "tenant_id"
	FieldMessageID     = "message_id"
	FieldEnvelopeID    = "envelope_id"
	FieldCorrelationID = "correlation_id"
	FieldRequestID     = "request_id"

	// Process / pipeline fields
	FieldEvent       = "event"
	FieldComponent   = "component"
	FieldCommandType = "command_type"
	FieldEventType   = "event_type"
	FieldRoutingKey  = "routing_key"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldReason   = "reason"
	FieldAttempt  = "attempt"
	FieldDelay    = "delay"

	// Path / URL fields
	FieldPath = "path"
)
