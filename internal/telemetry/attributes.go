// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by spans across packages.
const (
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"

	TenantIDKey  = "wabridge.tenant_id"
	SessionIDKey = "wabridge.session_id"

	CommandTypeKey    = "command.type"
	CommandIDKey      = "command.id"
	CommandOutcomeKey = "command.outcome"

	MessageIDKey   = "message.id"
	MessageKindKey = "message.kind"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// CommandAttributes describes one broker command. Empty values are skipped.
func CommandAttributes(commandType, envelopeID, tenantID, sessionID string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	attrs = append(attrs, attribute.String(CommandTypeKey, commandType))
	if envelopeID != "" {
		attrs = append(attrs, attribute.String(CommandIDKey, envelopeID))
	}
	if tenantID != "" {
		attrs = append(attrs, attribute.String(TenantIDKey, tenantID))
	}
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	return attrs
}

// MessageAttributes describes an outbound send.
func MessageAttributes(messageID, kind string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(MessageIDKey, messageID),
		attribute.String(MessageKindKey, kind),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
