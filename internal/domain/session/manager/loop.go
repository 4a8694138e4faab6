// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/ManuGH/wabridge/internal/domain/session/event"
	"github.com/ManuGH/wabridge/internal/domain/session/lifecycle"
	"github.com/ManuGH/wabridge/internal/domain/session/model"
	"github.com/ManuGH/wabridge/internal/domain/session/ports"
	xlog "github.com/ManuGH/wabridge/internal/log"
)

// owns reports whether c is still the live client of the registered entry e.
// Events from older clients or removed sessions are dropped.
func (o *Orchestrator) owns(e *sessionEntry, c ports.Client) bool {
	return o.registry.current(e) && e.Client() == c
}

// runLoop drains one client's events in protocol order until the client
// closes its channel.
func (o *Orchestrator) runLoop(e *sessionEntry, c ports.Client) {
	for ev := range c.Events() {
		if !o.owns(e, c) {
			// keep draining so the adapter never blocks on a stale client
			continue
		}
		o.dispatch(e, c, ev)
	}
}

func (o *Orchestrator) dispatch(e *sessionEntry, c ports.Client, ev ports.Event) {
	defer func() {
		if r := recover(); r != nil {
			l := o.log(o.ctx, e)
			l.Error().
				Str("panic", fmt.Sprint(r)).
				Str("stack", string(debug.Stack())).
				Str(xlog.FieldEventType, fmt.Sprintf("%T", ev)).
				Msg("protocol event handler panicked")
		}
	}()

	switch ev := ev.(type) {
	case ports.ConnectionOpened:
		o.handleOpen(e, c)
	case ports.ConnectionClosed:
		o.handleClose(e, c, ev)
	case ports.QRCode:
		o.handleQR(e, c, ev)
	case ports.CredentialsUpdated:
		o.handleCredentials(e, ev)
	case ports.MessageReceived:
		o.handleMessage(e, c, ev.Message)
	case ports.AckUpdate:
		o.handleAck(e, ev)
	case ports.Reaction:
		o.handleReaction(e, ev)
	case ports.ContactUpdated:
		o.handleContact(e, ev)
	case ports.GroupUpdated:
		_ = o.events.ContactUpdate(o.ctx, e.tenantID, event.ContactPayload{
			SessionID: e.id,
			ID:        ev.JID,
			Name:      ev.Name,
			IsGroup:   true,
		})
	case ports.HistoryBatch:
		o.handleHistory(e, c, ev)
	default:
		l := o.log(o.ctx, e)
		l.Debug().Str(xlog.FieldEventType, fmt.Sprintf("%T", ev)).Msg("ignoring protocol event")
	}
}

func (o *Orchestrator) handleOpen(e *sessionEntry, c ports.Client) {
	prev := e.Status()
	e.opened()
	o.refreshGauge()

	self := c.Self()
	e.setIdentity(self)
	number := phoneFromJID(self.JID)
	pic := ""
	if self.JID != "" {
		pic = o.profilePicture(o.ctx, e, c, self.JID)
	}

	l := o.log(o.ctx, e)
	l.Info().
		Str(xlog.FieldOldState, string(prev)).
		Str(xlog.FieldNewState, string(model.StatusConnected)).
		Str("number", number).
		Msg("session connected")
	_ = o.events.Status(o.ctx, e.tenantID, event.StatusPayload{
		SessionID:     e.id,
		Status:        model.StatusConnected,
		Number:        number,
		ProfilePicURL: pic,
	})
}

func (o *Orchestrator) handleClose(e *sessionEntry, c ports.Client, ev ports.ConnectionClosed) {
	if !e.claimClose(c) {
		return
	}
	manual := e.isManual()
	d := lifecycle.Classify(lifecycle.CloseInput{
		Reason:           ev.Reason,
		ManualDisconnect: manual,
		KeepAlive:        e.opts.KeepAlive,
	})
	sessionClosesTotal.WithLabelValues(ev.Reason.String(), d.Action.String()).Inc()

	l := o.log(o.ctx, e)
	evt := l.Info()
	if ev.Err != nil {
		evt = evt.Err(ev.Err)
	}
	evt.Str(xlog.FieldReason, ev.Reason.String()).
		Int("code", int(ev.Reason)).
		Str("action", d.Action.String()).
		Bool("manual", manual).
		Msg("protocol connection closed")

	_ = c.Close()

	if manual {
		// stop owns the rest of the teardown
		o.registry.remove(e)
		o.refreshGauge()
		return
	}
	if d.WipeCredentials {
		if err := o.creds.Wipe(e.id); err != nil {
			l.Error().Err(err).Msg("credential wipe after bad session failed")
		}
	}
	if d.Action == lifecycle.ActionTerminate {
		o.terminate(o.ctx, e, ev.Reason.String())
		return
	}
	o.scheduleReconnect(e)
}

func (o *Orchestrator) handleQR(e *sessionEntry, c ports.Client, ev ports.QRCode) {
	if e.opts.UsePairingCode {
		o.triggerPairing(e, c, "qr")
		return
	}
	l := o.log(o.ctx, e)
	l.Info().Str(xlog.FieldEvent, "session.qrcode").Msg("login QR code received")
	_ = o.events.QRCode(o.ctx, e.tenantID, e.id, ev.Code)
}

func (o *Orchestrator) handleCredentials(e *sessionEntry, ev ports.CredentialsUpdated) {
	id := e.Identity()
	if ev.State.JID != "" {
		id.JID = ev.State.JID
	}
	if ev.State.LID != "" {
		id.LID = ev.State.LID
	}
	if ev.State.PushName != "" {
		id.PushName = ev.State.PushName
	}
	e.setIdentity(id)
	if ev.State.Registered {
		e.markRegistered()
	}
	l := o.log(o.ctx, e)
	l.Debug().Bool("registered", ev.State.Registered).Msg("credentials updated")
}

func (o *Orchestrator) handleAck(e *sessionEntry, ev ports.AckUpdate) {
	ack, ok := model.AckFromProtocol(ev.Status)
	if !ok {
		l := o.log(o.ctx, e)
		l.Debug().Int("status", ev.Status).Msg("ignoring unmapped ack status")
		return
	}
	for _, id := range ev.MessageIDs {
		_ = o.events.Ack(o.ctx, e.tenantID, event.AckPayload{SessionID: e.id, MessageID: id, Ack: ack})
	}
}

func (o *Orchestrator) handleReaction(e *sessionEntry, ev ports.Reaction) {
	from := ev.Sender
	if from == "" {
		from = ev.Chat
	}
	_ = o.events.Reaction(o.ctx, e.tenantID, event.ReactionPayload{
		SessionID: e.id,
		MessageID: ev.MessageID,
		From:      from,
		Reaction:  ev.Emoji,
		FromMe:    ev.FromMe,
		Timestamp: ev.Timestamp.Unix(),
	})
}

func (o *Orchestrator) handleContact(e *sessionEntry, ev ports.ContactUpdated) {
	if ev.JID == "" {
		return
	}
	_ = o.events.ContactUpdate(o.ctx, e.tenantID, event.ContactPayload{
		SessionID: e.id,
		ID:        ev.JID,
		Name:      ev.Name,
		PushName:  ev.PushName,
		IsGroup:   isGroupJID(ev.JID),
	})
}

// phoneFromJID strips the server and device parts: "5511999:3@s.whatsapp.net" -> "5511999".
func phoneFromJID(jid string) string {
	user, _, _ := strings.Cut(jid, "@")
	user, _, _ = strings.Cut(user, ":")
	return user
}

func isGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@g.us")
}
