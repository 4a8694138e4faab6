// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"strings"

	"github.com/ManuGH/wabridge/internal/domain/session/command"
	"github.com/ManuGH/wabridge/internal/domain/session/event"
	xlog "github.com/ManuGH/wabridge/internal/log"
)

const groupServer = "@g.us"

// SyncContact looks up what the protocol knows about one contact or group
// and publishes it as contact.update, echoing contactId.
func (o *Orchestrator) SyncContact(ctx context.Context, tenantID string, c command.SyncContact) error {
	e, client := o.liveClient(c.SessionID)
	if client == nil {
		l := xlog.WithContext(ctx, o.logger)
		l.Warn().Str(xlog.FieldSessionID, c.SessionID).Msg("contact sync for unknown session")
		return nil
	}
	l := o.log(ctx, e)

	number := c.Number.String()
	payload := event.ContactPayload{
		SessionID: e.id,
		ContactID: c.ContactID,
		LID:       c.LID,
		IsGroup:   c.IsGroup,
	}
	if c.IsGroup {
		jid := number
		if !strings.Contains(jid, "@") {
			jid += groupServer
		}
		payload.ID = jid
		o.runStep(ctx, e, "", "group_name", func(ctx context.Context) error {
			name, err := client.GroupName(ctx, jid)
			if err != nil {
				return err
			}
			payload.Name = name
			return nil
		})
	} else {
		jid, err := client.ResolveRecipient(ctx, number, c.LID)
		if err != nil {
			l.Warn().Err(err).Str("number", number).Msg("contact sync could not resolve number")
			jid = number
		}
		payload.ID = jid
	}
	payload.ProfilePicURL = o.profilePicture(ctx, e, client, payload.ID)

	return o.events.ContactUpdate(ctx, e.tenantID, payload)
}

// MarkAsRead sends read receipts. Failures are logged only.
func (o *Orchestrator) MarkAsRead(ctx context.Context, tenantID string, c command.MarkAsRead) error {
	e, client := o.liveClient(c.SessionID)
	if client == nil {
		l := xlog.WithContext(ctx, o.logger)
		l.Warn().Str(xlog.FieldSessionID, c.SessionID).Msg("mark as read for unknown session")
		return nil
	}
	if len(c.MessageIDs) == 0 {
		return nil
	}
	l := o.log(ctx, e)
	chat, err := client.ResolveRecipient(ctx, c.To.String(), "")
	if err != nil {
		chat = c.To.String()
	}
	if err := client.MarkRead(ctx, chat, c.MessageIDs); err != nil {
		l.Warn().Err(err).Int("messages", len(c.MessageIDs)).Msg("read receipts failed")
	}
	return nil
}

// ImportContacts does nothing: contacts reach the platform through inbound
// messages and contact.update events only.
func (o *Orchestrator) ImportContacts(ctx context.Context, tenantID string, c command.ImportContacts) error {
	l := xlog.WithContext(ctx, o.logger)
	l.Info().Str(xlog.FieldSessionID, c.SessionID).Str(xlog.FieldTenantID, tenantID).Msg("contact import requested, nothing to do")
	return nil
}

// SyncHistory acknowledges the request. The protocol has no on-demand
// history fetch, so the answer is always "unsupported".
func (o *Orchestrator) SyncHistory(ctx context.Context, tenantID string, c command.SyncHistory) error {
	if e, ok := o.registry.get(c.SessionID); ok {
		tenantID = e.tenantID
	}
	l := xlog.WithContext(ctx, o.logger)
	l.Info().
		Str(xlog.FieldSessionID, c.SessionID).
		Str("contact", c.ContactNumber.String()).
		Time("from", c.FromDate.Time).
		Msg("history sync requested, not supported by protocol")
	return o.events.HistoryStatus(ctx, tenantID, event.HistoryPayload{
		SessionID: c.SessionID,
		TicketID:  c.TicketID,
		ContactID: c.ContactID,
		Status:    event.HistoryUnsupported,
	})
}
