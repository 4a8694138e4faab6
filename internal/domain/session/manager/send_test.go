// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/wabridge/internal/domain/session/command"
	"github.com/ManuGH/wabridge/internal/domain/session/event"
	"github.com/ManuGH/wabridge/internal/domain/session/model"
	"github.com/ManuGH/wabridge/internal/domain/session/ports"
)

func TestSend_NoSessionEmitsAckError(t *testing.T) {
	h := newHarness(t)

	err := h.orch.SendText(context.Background(), tenant, command.SendText{
		SessionID: "s1", To: "5511888888888", Body: "hi", MessageID: "abc",
	})

	require.NoError(t, err)
	assert.Equal(t, []event.AckPayload{{SessionID: "s1", MessageID: "abc", Ack: model.AckError}}, h.acks())
	msgs := h.bus.Events(event.TypeMessageAck)
	require.Len(t, msgs, 1)
	assert.Equal(t, "wa.evt.t1.s1.message.ack", msgs[0].RoutingKey)
}

func TestSend_FailureAcksOnlyWithMessageID(t *testing.T) {
	tests := []struct {
		name      string
		messageID string
		breakIt   func(h *harness)
		wantAcks  int
	}{
		{
			name:      "send error with id",
			messageID: "abc",
			breakIt:   func(h *harness) { h.conn.Last().SetSendErr(errors.New("stream closed")) },
			wantAcks:  1,
		},
		{
			name:     "send error without id",
			breakIt:  func(h *harness) { h.conn.Last().SetSendErr(errors.New("stream closed")) },
			wantAcks: 0,
		},
		{
			name:      "recipient lookup fails",
			messageID: "abc",
			breakIt:   func(h *harness) { h.conn.Last().SetResolveErr(ports.ErrRecipientNotFound) },
			wantAcks:  1,
		},
		{
			name:     "no session without id",
			breakIt:  func(h *harness) { h.stop("s1") },
			wantAcks: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.startConnected("s1")
			tt.breakIt(h)

			err := h.orch.SendText(context.Background(), tenant, command.SendText{
				SessionID: "s1", To: "5511888888888", Body: "hi", MessageID: tt.messageID,
			})
			require.NoError(t, err)

			acks := h.acks()
			require.Len(t, acks, tt.wantAcks)
			for _, a := range acks {
				assert.Equal(t, model.AckError, a.Ack)
				assert.Equal(t, tt.messageID, a.MessageID)
			}
			assert.Empty(t, h.messages(), "failed sends are not echoed")
		})
	}
}

func TestSend_InvalidMediaAcksError(t *testing.T) {
	h := newHarness(t)
	c := h.startConnected("s1")

	require.NoError(t, h.orch.SendMedia(context.Background(), tenant, command.SendMedia{
		SessionID: "s1", To: "5511888888888", MessageID: "m1",
		Media: command.MediaData{Data: "not base64!", Mimetype: "image/png"},
	}))

	assert.Empty(t, c.Sent())
	assert.Equal(t, []event.AckPayload{{SessionID: "s1", MessageID: "m1", Ack: model.AckError}}, h.acks())
}

func TestSend_InvalidContentAcksError(t *testing.T) {
	tests := []struct {
		name      string
		messageID string
		send      func(o *Orchestrator, id string) error
		wantAcks  int
	}{
		{
			name:      "poll with one option",
			messageID: "abc",
			send: func(o *Orchestrator, id string) error {
				return o.SendPoll(context.Background(), tenant, command.SendPoll{
					SessionID: "s1", To: "5511888888888", Name: "Lunch?", Options: []string{"yes"}, MessageID: id,
				})
			},
			wantAcks: 1,
		},
		{
			name:      "media without mimetype",
			messageID: "abc",
			send: func(o *Orchestrator, id string) error {
				return o.SendMedia(context.Background(), tenant, command.SendMedia{
					SessionID: "s1", To: "5511888888888", MessageID: id,
					Media: command.MediaData{Data: "aGk="},
				})
			},
			wantAcks: 1,
		},
		{
			name:      "interactive call button",
			messageID: "abc",
			send: func(o *Orchestrator, id string) error {
				return o.SendInteractive(context.Background(), tenant, command.SendInteractive{
					SessionID: "s1", To: "5511888888888", Text: "t", MessageID: id,
					Buttons: []command.ActionButton{{Type: "call", Text: "Call", PhoneNumber: "5511"}},
				})
			},
			wantAcks: 1,
		},
		{
			name: "text without recipient and no id",
			send: func(o *Orchestrator, id string) error {
				return o.SendText(context.Background(), tenant, command.SendText{SessionID: "s1", Body: "hi", MessageID: id})
			},
			wantAcks: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			c := h.startConnected("s1")

			require.NoError(t, tt.send(h.orch, tt.messageID))

			assert.Empty(t, c.Sent())
			acks := h.acks()
			require.Len(t, acks, tt.wantAcks)
			for _, a := range acks {
				assert.Equal(t, event.AckPayload{SessionID: "s1", MessageID: tt.messageID, Ack: model.AckError}, a)
			}
		})
	}
}

func TestSend_EchoCarriesOriginalID(t *testing.T) {
	h := newHarness(t)
	c := h.startConnected("s1")

	require.NoError(t, h.orch.SendText(context.Background(), tenant, command.SendText{
		SessionID: "s1", To: "5511888888888", Body: "hi", MessageID: "abc",
		Options: command.TextOptions{QuotedMsgID: "3EB0QUOTED"},
	}))

	sent := c.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "5511888888888@s.whatsapp.net", sent[0].To)
	assert.True(t, IsProtocolMessageID(sent[0].MessageID), "caller id %q is not protocol shaped, a new one is generated", sent[0].MessageID)
	assert.Equal(t, ports.Text{Body: "hi", QuotedID: "3EB0QUOTED"}, sent[0].Content)

	msgs := h.messages()
	require.Len(t, msgs, 1)
	m := msgs[0]
	assert.Equal(t, sent[0].MessageID, m.ID)
	assert.Equal(t, "abc", m.OriginalID)
	assert.True(t, m.FromMe)
	assert.Equal(t, "hi", m.Body)
	assert.Equal(t, TypeChat, m.Type)
	assert.Equal(t, "5511888888888@s.whatsapp.net", m.To)
	assert.Equal(t, "3EB0QUOTED", m.QuotedMsgID)
	assert.Empty(t, m.ProfilePicURL, "own messages skip sender lookups")
}

func TestSend_ReusesProtocolShapedID(t *testing.T) {
	h := newHarness(t)
	c := h.startConnected("s1")
	id := "3EB0A1B2C3D4E5F60718"

	require.NoError(t, h.orch.SendText(context.Background(), tenant, command.SendText{
		SessionID: "s1", To: "5511888888888", Body: "hi", MessageID: id,
	}))

	require.Len(t, c.Sent(), 1)
	assert.Equal(t, id, c.Sent()[0].MessageID)
}

func TestSend_ProtocolEchoSuppressedOnce(t *testing.T) {
	h := newHarness(t)
	c := h.startConnected("s1")
	require.NoError(t, h.orch.SendText(context.Background(), tenant, command.SendText{
		SessionID: "s1", To: "5511888888888", Body: "hi",
	}))
	id := c.Sent()[0].MessageID
	require.Len(t, h.messages(), 1)

	echo := ports.InboundMessage{ID: id, Chat: "5511888888888@s.whatsapp.net", FromMe: true, Content: ports.MessageContent{Text: "hi"}}
	require.True(t, c.Emit(ports.MessageReceived{Message: echo}))
	require.True(t, c.Emit(ports.MessageReceived{Message: echo}))

	msgs := h.waitMessages(2)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, h.messages(), 2, "first echo dropped, second treated as new")
	assert.Empty(t, msgs[1].OriginalID)
}

func TestSend_ContentConversion(t *testing.T) {
	h := newHarness(t)
	c := h.startConnected("s1")
	ctx := context.Background()
	png := []byte{0x89, 'P', 'N', 'G'}

	require.NoError(t, h.orch.SendMedia(ctx, tenant, command.SendMedia{
		SessionID: "s1", To: "5511888888888", Caption: "look",
		Media: command.MediaData{Data: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), Mimetype: "image/png", Filename: "a.png"},
	}))
	require.NoError(t, h.orch.SendButtons(ctx, tenant, command.SendButtons{
		SessionID: "s1", To: "5511888888888", Text: "pick", Footer: "f",
		Buttons: []command.ReplyButton{{ButtonID: "b1", ButtonText: "One"}},
	}))
	require.NoError(t, h.orch.SendList(ctx, tenant, command.SendList{
		SessionID: "s1", To: "5511888888888", Text: "menu", ButtonText: "Open",
		Sections: []command.ListSection{{Title: "S", Rows: []command.ListRow{{RowID: "r1", Title: "Row"}}}},
	}))
	require.NoError(t, h.orch.SendPoll(ctx, tenant, command.SendPoll{
		SessionID: "s1", To: "5511888888888", Name: "Lunch?", Options: []string{"yes", "no"}, SelectableCount: 5,
	}))
	require.NoError(t, h.orch.SendTemplate(ctx, tenant, command.SendTemplate{
		SessionID: "s1", To: "5511888888888", Text: "t",
		Buttons: []command.ActionButton{{Type: "call", Text: "Call", PhoneNumber: "+55 11 9999"}},
	}))
	require.NoError(t, h.orch.SendInteractive(ctx, tenant, command.SendInteractive{
		SessionID: "s1", To: "5511888888888", Text: "i",
		Buttons: []command.ActionButton{{Type: "url", Text: "Site", URL: "https://example.com"}},
	}))
	require.NoError(t, h.orch.SendCarousel(ctx, tenant, command.SendCarousel{
		SessionID: "s1", To: "120363000000000000@g.us", Text: "c",
		Cards: []command.CarouselCard{{Body: "card", Buttons: []command.ActionButton{{Type: "quickReply", Text: "Go", ID: "go"}}}},
	}))

	sent := c.Sent()
	require.Len(t, sent, 7)
	assert.Equal(t, ports.MediaUpload{Data: png, Mimetype: "image/png", Filename: "a.png", Caption: "look"}, sent[0].Content)
	assert.Equal(t, ports.Buttons{Text: "pick", Footer: "f", Buttons: []ports.Button{{ID: "b1", Text: "One"}}}, sent[1].Content)
	assert.Equal(t, "r1", sent[2].Content.(ports.List).Sections[0].Rows[0].ID)
	assert.Equal(t, 1, sent[3].Content.(ports.Poll).SelectableCount, "out of range selectable count falls back to 1")
	assert.Equal(t, "55119999", sent[4].Content.(ports.Template).Buttons[0].Phone)
	assert.Equal(t, ports.ActionURL, sent[5].Content.(ports.Interactive).Buttons[0].Type)
	assert.Equal(t, "120363000000000000@g.us", sent[6].To)

	msgs := h.messages()
	require.Len(t, msgs, 7)
	assert.Equal(t, "image", msgs[0].Type)
	assert.Equal(t, base64.StdEncoding.EncodeToString(png), msgs[0].MediaData)
	assert.Equal(t, TypePollCreation, msgs[3].Type)
	assert.True(t, msgs[6].IsGroup)
}

func TestIsProtocolMessageID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"3EB0A1B2C3D4E5F60718", true},
		{"A1B2C3D4E5F60718", true},
		{"3EB0A1B2C3D4E5F60718A1B2C3D4E5F60718", false},
		{"abc", false},
		{"a1b2c3d4e5f60718", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsProtocolMessageID(tt.id), tt.id)
	}
}
