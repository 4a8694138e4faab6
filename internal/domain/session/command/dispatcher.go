// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package command

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/wabridge/internal/broker"
	xlog "github.com/ManuGH/wabridge/internal/log"
	"github.com/ManuGH/wabridge/internal/telemetry"
)

const tracerName = "github.com/ManuGH/wabridge/internal/domain/session/command"

var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wabridge_commands_total",
		Help: "Commands by type and outcome (ok, error, malformed, unknown, rejected)",
	}, []string{"type", "outcome"})

	commandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wabridge_command_duration_seconds",
		Help:    "Time spent executing a command on its session lane",
		Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
	}, []string{"type"})
)

// Dispatcher decodes envelopes once and runs them on the session's lane.
type Dispatcher struct {
	handler Handler
	exec    *Executor
	logger  zerolog.Logger
}

func NewDispatcher(h Handler, exec *Executor) *Dispatcher {
	return &Dispatcher{
		handler: h,
		exec:    exec,
		logger:  xlog.WithComponent("command"),
	}
}

// HandleEnvelope is a broker.Handler. It returns once the command is queued,
// so the delivery is acknowledged before the command runs. Decode failures
// are returned and make the transport drop the delivery.
func (d *Dispatcher) HandleEnvelope(ctx context.Context, env broker.Envelope) error {
	dec, err := Decode(env)
	if err != nil {
		outcome := "malformed"
		if errors.Is(err, ErrUnknownType) {
			outcome = "unknown"
		}
		commandsTotal.WithLabelValues(env.Type, outcome).Inc()
		return err
	}

	cmd := dec.Command
	// carry the producer's trace into the lane without its cancellation
	link := trace.LinkFromContext(ctx)
	err = d.exec.Submit(cmd.Session(), func(laneCtx context.Context) {
		d.run(laneCtx, dec, link)
	})
	if err != nil {
		commandsTotal.WithLabelValues(cmd.Type(), "rejected").Inc()
		return err
	}
	return nil
}

func (d *Dispatcher) run(ctx context.Context, dec Decoded, link trace.Link) {
	cmd := dec.Command
	ctx = xlog.ContextWithCorrelationID(ctx, dec.EnvelopeID)
	ctx, span := telemetry.Tracer(tracerName).Start(ctx, "command "+cmd.Type(),
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithLinks(link),
		trace.WithAttributes(telemetry.CommandAttributes(cmd.Type(), dec.EnvelopeID, dec.TenantID, cmd.Session())...),
	)

	l := d.logger.With().
		Str(xlog.FieldCommandType, cmd.Type()).
		Str(xlog.FieldTenantID, dec.TenantID).
		Str(xlog.FieldSessionID, cmd.Session()).
		Str(xlog.FieldEnvelopeID, dec.EnvelopeID).
		Logger()

	start := time.Now()
	var err error
	defer func() {
		if r := recover(); r != nil {
			commandsTotal.WithLabelValues(cmd.Type(), "panic").Inc()
			l.Error().Interface("panic", r).Str(xlog.FieldEvent, "command.panic").Msg("command handler panicked")
			telemetry.EndSpan(span, errors.New("panic"), "panic")
			return
		}
		commandDuration.WithLabelValues(cmd.Type()).Observe(time.Since(start).Seconds())
		if err != nil {
			commandsTotal.WithLabelValues(cmd.Type(), "error").Inc()
			l.Warn().Err(err).Str(xlog.FieldEvent, "command.failed").Msg("command failed")
		} else {
			commandsTotal.WithLabelValues(cmd.Type(), "ok").Inc()
			l.Debug().Dur("duration", time.Since(start)).Msg("command handled")
		}
		telemetry.EndSpan(span, err, "command_failed")
	}()

	err = Apply(ctx, dec.TenantID, cmd, d.handler)
}
