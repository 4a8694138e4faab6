// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package whatsapp

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/ManuGH/wabridge/internal/domain/session/model"
	"github.com/ManuGH/wabridge/internal/domain/session/ports"
)

const (
	reasonQRTimeout = model.ReasonConnectionLost
	reasonUnknown   = model.ReasonUnknown
	serverAckStatus = model.ProtoStatusServerAck
)

func closedFor(reason model.DisconnectReason, err error) ports.ConnectionClosed {
	return ports.ConnectionClosed{Reason: reason, Err: err}
}

// handleEvent is registered with whatsmeow. Events that need the client
// (store access, decryption) are handled here; the rest go through translate.
func (c *Client) handleEvent(raw any) {
	switch evt := raw.(type) {
	case *events.Connected:
		st := c.authState()
		c.saveCredentials(st)
		c.emit(ports.CredentialsUpdated{State: st})
		c.emit(ports.ConnectionOpened{})
	case *events.PairSuccess:
		st := ports.AuthState{
			Registered:  true,
			JID:         evt.ID.String(),
			Platform:    evt.Platform,
			PushName:    evt.BusinessName,
			PairingMode: c.cfg.PairingCode,
			UpdatedAt:   time.Now().UTC(),
		}
		if !evt.LID.IsEmpty() {
			st.LID = evt.LID.String()
		}
		c.saveCredentials(st)
		c.emit(ports.CredentialsUpdated{State: st})
	case *events.Message:
		c.onMessage(evt)
	case *events.HistorySync:
		c.onHistory(evt)
	case *events.KeepAliveTimeout:
		c.logger.Warn().Int("errors", evt.ErrorCount).Msg("keepalive timeout")
	default:
		if ev, ok := translate(raw); ok {
			c.emit(ev)
		}
	}
}

// translate maps the stateless whatsmeow events.
func translate(raw any) (ports.Event, bool) {
	switch evt := raw.(type) {
	case *events.Disconnected:
		return closedFor(model.ReasonConnectionClosed, nil), true
	case *events.LoggedOut:
		return closedFor(model.ReasonLoggedOut, fmt.Errorf("logged out (on connect: %t, reason %d)", evt.OnConnect, int(evt.Reason))), true
	case *events.StreamReplaced:
		return closedFor(model.ReasonConnectionReplaced, nil), true
	case *events.ClientOutdated:
		return closedFor(model.ReasonClientOutdated, nil), true
	case *events.TemporaryBan:
		return closedFor(model.ReasonForbidden, errors.New(evt.String())), true
	case *events.ConnectFailure:
		return closedFor(model.DisconnectReason(evt.Reason), fmt.Errorf("connect failure: %s", evt.Message)), true
	case *events.StreamError:
		return closedFor(model.ReasonRestartRequired, fmt.Errorf("stream error %s", evt.Code)), true
	case *events.Receipt:
		// receipts for messages we received, sent by our other devices
		if evt.IsFromMe {
			return nil, false
		}
		status, ok := receiptStatus(evt.Type)
		if !ok || len(evt.MessageIDs) == 0 {
			return nil, false
		}
		ids := make([]string, 0, len(evt.MessageIDs))
		for _, id := range evt.MessageIDs {
			ids = append(ids, string(id))
		}
		return ports.AckUpdate{Chat: evt.Chat.String(), MessageIDs: ids, Status: status}, true
	case *events.PushName:
		return ports.ContactUpdated{JID: evt.JID.ToNonAD().String(), PushName: evt.NewPushName}, true
	case *events.Contact:
		return ports.ContactUpdated{JID: evt.JID.String(), Name: evt.Action.GetFullName()}, true
	case *events.GroupInfo:
		if evt.Name == nil {
			return nil, false
		}
		return ports.GroupUpdated{JID: evt.JID.String(), Name: evt.Name.Name}, true
	}
	return nil, false
}

func receiptStatus(t types.ReceiptType) (int, bool) {
	switch t {
	case types.ReceiptTypeDelivered:
		return model.ProtoStatusDeliveryAck, true
	case types.ReceiptTypeRead:
		return model.ProtoStatusRead, true
	case types.ReceiptTypePlayed:
		return model.ProtoStatusPlayed, true
	case types.ReceiptTypeServerError:
		return model.ProtoStatusError, true
	}
	return 0, false
}

func (c *Client) authState() ports.AuthState {
	id := c.Self()
	st := ports.AuthState{
		Registered:  id.JID != "",
		JID:         id.JID,
		LID:         id.LID,
		PushName:    id.PushName,
		PairingMode: c.cfg.PairingCode,
		UpdatedAt:   time.Now().UTC(),
	}
	if c.wa.Store != nil {
		st.Platform = c.wa.Store.Platform
	}
	return st
}

func (c *Client) saveCredentials(st ports.AuthState) {
	if c.cfg.SaveCredentials == nil {
		return
	}
	if err := c.cfg.SaveCredentials(st); err != nil {
		c.logger.Error().Err(err).Msg("saving credentials failed")
	}
}

func (c *Client) onMessage(evt *events.Message) {
	evt = evt.UnwrapRaw()
	m := evt.Message
	if r := m.GetReactionMessage(); r != nil {
		ts := evt.Info.Timestamp
		if ms := r.GetSenderTimestampMS(); ms > 0 {
			ts = time.UnixMilli(ms)
		}
		c.emit(ports.Reaction{
			Chat:      evt.Info.Chat.String(),
			Sender:    evt.Info.Sender.ToNonAD().String(),
			MessageID: r.GetKey().GetID(),
			Emoji:     r.GetText(),
			FromMe:    evt.Info.IsFromMe,
			Timestamp: ts,
		})
		return
	}

	content := decodeContent(m)
	if upd := m.GetPollUpdateMessage(); upd != nil {
		vote := &ports.PollVote{PollID: upd.GetPollCreationMessageKey().GetID()}
		if dec, err := c.wa.DecryptPollVote(c.ctx, evt); err != nil {
			c.logger.Debug().Err(err).Str("message_id", string(evt.Info.ID)).Msg("poll vote not decrypted")
		} else {
			for _, h := range dec.GetSelectedOptions() {
				vote.Options = append(vote.Options, hex.EncodeToString(h))
			}
		}
		content.PollVote = vote
	}
	c.emit(ports.MessageReceived{Message: inboundFrom(evt.Info, content)})
}

func (c *Client) onHistory(evt *events.HistorySync) {
	var msgs []ports.InboundMessage
	for _, conv := range evt.Data.GetConversations() {
		chat, err := types.ParseJID(conv.GetID())
		if err != nil {
			continue
		}
		for _, hm := range conv.GetMessages() {
			parsed, err := c.wa.ParseWebMessage(chat, hm.GetMessage())
			if err != nil {
				continue
			}
			parsed = parsed.UnwrapRaw()
			if parsed.Message.GetReactionMessage() != nil {
				continue
			}
			msgs = append(msgs, inboundFrom(parsed.Info, decodeContent(parsed.Message)))
		}
	}
	c.emit(ports.HistoryBatch{Messages: msgs, Progress: int(evt.Data.GetProgress())})
}

func inboundFrom(info types.MessageInfo, content ports.MessageContent) ports.InboundMessage {
	msg := ports.InboundMessage{
		ID:        string(info.ID),
		Chat:      info.Chat.String(),
		Sender:    info.Sender.ToNonAD().String(),
		FromMe:    info.IsFromMe,
		IsGroup:   info.IsGroup,
		PushName:  info.PushName,
		Timestamp: info.Timestamp,
		Content:   content,
	}
	if !info.SenderAlt.IsEmpty() {
		msg.SenderAlt = info.SenderAlt.ToNonAD().String()
	}
	return msg
}
