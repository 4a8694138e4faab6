// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package broker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	xlog "github.com/ManuGH/wabridge/internal/log"
	"github.com/ManuGH/wabridge/internal/metrics"
)

// Outcome tells a driver how to settle a delivery.
type Outcome string

const (
	OutcomeAck         Outcome = "ack"
	OutcomeNackDecode  Outcome = "nack_decode"
	OutcomeNackHandler Outcome = "nack_handler"
)

// Deliver decodes body and hands it to h. Drivers ack on OutcomeAck and drop
// without requeue otherwise. Handler panics are reported as handler failures.
func Deliver(ctx context.Context, driver string, logger zerolog.Logger, body []byte, h Handler) (outcome Outcome) {
	defer func() { metrics.RecordDelivery(driver, string(outcome)) }()

	env, err := Decode(body)
	if err != nil {
		logger.Warn().Err(err).Int("bytes", len(body)).
			Str(xlog.FieldEvent, "broker.decode_failed").
			Msg("dropping malformed command")
		return OutcomeNackDecode
	}

	l := logger.With().
		Str(xlog.FieldEnvelopeID, env.ID).
		Str(xlog.FieldTenantID, env.TenantID).
		Str(xlog.FieldCommandType, env.Type).
		Logger()

	if err := safeHandle(ctx, h, env); err != nil {
		l.Warn().Err(err).Str(xlog.FieldEvent, "broker.handler_failed").Msg("command rejected")
		return OutcomeNackHandler
	}
	return OutcomeAck
}

func safeHandle(ctx context.Context, h Handler, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, env)
}
