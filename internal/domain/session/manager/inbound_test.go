// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/wabridge/internal/cache"
	"github.com/ManuGH/wabridge/internal/domain/session/command"
	"github.com/ManuGH/wabridge/internal/domain/session/event"
	"github.com/ManuGH/wabridge/internal/domain/session/model"
	"github.com/ManuGH/wabridge/internal/domain/session/ports"
	"github.com/ManuGH/wabridge/internal/protocol/protocoltest"
)

const (
	peer    = "5511888888888@s.whatsapp.net"
	group   = "120363000000000000@g.us"
	selfJID = "5511000000000:7@s.whatsapp.net"
)

func inbound(id string, content ports.MessageContent) ports.InboundMessage {
	return ports.InboundMessage{ID: id, Chat: peer, Sender: peer, PushName: "Ana", Timestamp: epoch, Content: content}
}

func TestInbound_AckMapping(t *testing.T) {
	h := newHarness(t)
	c := h.startConnected("s1")

	require.True(t, c.Emit(ports.AckUpdate{Chat: peer, MessageIDs: []string{"x"}, Status: 9}))
	for code := model.ProtoStatusError; code <= model.ProtoStatusPlayed; code++ {
		require.True(t, c.Emit(ports.AckUpdate{Chat: peer, MessageIDs: []string{"m1"}, Status: code}))
	}
	require.Eventually(t, func() bool { return len(h.acks()) == 6 }, waitFor, tick)

	got := make([]model.Ack, 0, 6)
	for _, a := range h.acks() {
		assert.Equal(t, "m1", a.MessageID, "unmapped status produces no ack")
		got = append(got, a.Ack)
	}
	assert.Equal(t, []model.Ack{model.AckError, model.AckPending, model.AckSent, model.AckDelivered, model.AckRead, model.AckPlayed}, got)
}

func TestInbound_AckFansOutPerMessage(t *testing.T) {
	h := newHarness(t)
	c := h.startConnected("s1")

	require.True(t, c.Emit(ports.AckUpdate{Chat: peer, MessageIDs: []string{"a", "b"}, Status: model.ProtoStatusRead}))
	require.Eventually(t, func() bool { return len(h.acks()) == 2 }, waitFor, tick)
	assert.Equal(t, []event.AckPayload{
		{SessionID: "s1", MessageID: "a", Ack: model.AckRead},
		{SessionID: "s1", MessageID: "b", Ack: model.AckRead},
	}, h.acks())
}

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  ports.InboundMessage
		want event.MessagePayload
	}{
		{
			name: "text",
			msg:  inbound("m1", ports.MessageContent{Text: "hello"}),
			want: event.MessagePayload{Type: TypeChat, Body: "hello", From: peer, To: selfJID},
		},
		{
			name: "own message swaps direction",
			msg:  ports.InboundMessage{ID: "m1", Chat: peer, FromMe: true, PushName: "Ana", Timestamp: epoch, Content: ports.MessageContent{Text: "hi"}},
			want: event.MessagePayload{Type: TypeChat, Body: "hi", From: selfJID, To: peer, FromMe: true},
		},
		{
			name: "group sets participant",
			msg:  ports.InboundMessage{ID: "m1", Chat: group, Sender: peer, IsGroup: true, PushName: "Ana", Timestamp: epoch, Content: ports.MessageContent{Text: "all"}},
			want: event.MessagePayload{Type: TypeChat, Body: "all", From: group, To: selfJID, IsGroup: true, Participant: peer},
		},
		{
			name: "media",
			msg: inbound("m1", ports.MessageContent{Media: &ports.Media{
				Kind: ports.MediaDocument, Mimetype: "application/pdf", Filename: "a.pdf", Caption: "invoice",
			}}),
			want: event.MessagePayload{Type: "document", Body: "invoice", HasMedia: true, Mimetype: "application/pdf", Filename: "a.pdf", From: peer, To: selfJID},
		},
		{
			name: "button reply",
			msg:  inbound("m1", ports.MessageContent{ButtonReply: &ports.ButtonReply{ID: "b1", Text: "Yes"}}),
			want: event.MessagePayload{Type: TypeButtonsReply, Body: "Yes", SelectedButtonID: "b1", From: peer, To: selfJID},
		},
		{
			name: "template reply",
			msg:  inbound("m1", ports.MessageContent{TemplateReply: &ports.ButtonReply{ID: "t1", Text: "Go"}}),
			want: event.MessagePayload{Type: TypeTemplateReply, Body: "Go", SelectedButtonID: "t1", From: peer, To: selfJID},
		},
		{
			name: "list reply",
			msg:  inbound("m1", ports.MessageContent{ListReply: &ports.ListReply{RowID: "r1", Title: "Row"}}),
			want: event.MessagePayload{Type: TypeListReply, Body: "Row", SelectedRowID: "r1", From: peer, To: selfJID},
		},
		{
			name: "interactive reply",
			msg:  inbound("m1", ports.MessageContent{InteractiveReply: &ports.InteractiveReply{ID: "i1", Body: "Site"}}),
			want: event.MessagePayload{Type: TypeInteractive, Body: "Site", SelectedButtonID: "i1", From: peer, To: selfJID},
		},
		{
			name: "poll vote",
			msg:  inbound("m1", ports.MessageContent{PollVote: &ports.PollVote{PollID: "p1", Options: []string{"yes"}}}),
			want: event.MessagePayload{Type: TypePollVote, PollID: "p1", SelectedOptions: []string{"yes"}, From: peer, To: selfJID},
		},
		{
			name: "location",
			msg:  inbound("m1", ports.MessageContent{Location: &ports.Location{Latitude: -23.5, Longitude: -46.6, Name: "SP"}}),
			want: event.MessagePayload{Type: TypeLocation, Body: "SP", Location: &event.LocationPayload{Latitude: -23.5, Longitude: -46.6, Name: "SP"}, From: peer, To: selfJID},
		},
		{
			name: "contact card",
			msg:  inbound("m1", ports.MessageContent{Contact: &ports.ContactCard{DisplayName: "Bob", VCard: "BEGIN:VCARD"}}),
			want: event.MessagePayload{Type: TypeVCard, Body: "Bob", VCard: "BEGIN:VCARD", From: peer, To: selfJID},
		},
		{
			name: "extended text",
			msg:  inbound("m1", ports.MessageContent{ExtendedText: &ports.ExtendedText{Text: "see https://example.com"}}),
			want: event.MessagePayload{Type: TypeChat, Body: "see https://example.com", From: peer, To: selfJID},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := tt.want
			want.SessionID = "s1"
			want.ID = "m1"
			want.PushName = "Ana"
			want.Timestamp = epoch.Unix()

			got := decodeMessage("s1", selfJID, tt.msg)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("decodeMessage mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInbound_EnrichmentSteps(t *testing.T) {
	h := newHarness(t)
	c := h.startConnected("s1")
	c.SetMedia([]byte("jpeg-bytes"), nil)
	c.SetLID(peer, "200000000000002@lid")
	c.SetProfilePicture(peer, "https://pps.example/ana.jpg")

	msg := inbound("m1", ports.MessageContent{
		ExtendedText: &ports.ExtendedText{
			Text:    "look https://example.com",
			Preview: &ports.LinkPreview{Title: "Example", MatchedText: "https://example.com"},
		},
		Quoted: &ports.QuotedInfo{ID: "q1", Sender: peer, Body: "earlier"},
	})
	require.True(t, c.Emit(ports.MessageReceived{Message: msg}))
	media := inbound("m2", ports.MessageContent{Media: &ports.Media{Kind: ports.MediaImage, Mimetype: "image/jpeg", Ref: "direct-path"}})
	media.SenderAlt = "300000000000003@lid"
	require.True(t, c.Emit(ports.MessageReceived{Message: media}))

	msgs := h.waitMessages(2)
	text := msgs[0]
	assert.Equal(t, "200000000000002@lid", text.SenderLID)
	assert.Equal(t, "https://pps.example/ana.jpg", text.ProfilePicURL)
	assert.Equal(t, "q1", text.QuotedMsgID)
	assert.Equal(t, &event.QuotedPayload{ID: "q1", Body: "earlier", Participant: peer}, text.QuotedMsg)
	assert.Equal(t, &event.PreviewPayload{Title: "Example", URL: "https://example.com", MatchedText: "https://example.com"}, text.URLPreview)

	img := msgs[1]
	assert.Equal(t, "image", img.Type)
	assert.True(t, img.HasMedia)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("jpeg-bytes")), img.MediaData)
	assert.Equal(t, "300000000000003@lid", img.SenderLID, "sender alt wins over lookup")
}

func TestInbound_EnrichmentFailuresAreIsolated(t *testing.T) {
	h := newHarness(t)
	c := h.startConnected("s1")
	c.SetMedia(nil, errors.New("media expired"))
	c.SetProfileErr(errors.New("not authorized"))

	msg := inbound("m1", ports.MessageContent{Media: &ports.Media{Kind: ports.MediaVideo, Mimetype: "video/mp4", Caption: "clip", Ref: "direct-path"}})
	require.True(t, c.Emit(ports.MessageReceived{Message: msg}))

	got := h.waitMessages(1)[0]
	want := event.MessagePayload{
		SessionID: "s1", ID: "m1", From: peer, To: selfJID, Body: "clip", Type: "video",
		Timestamp: epoch.Unix(), HasMedia: true, Mimetype: "video/mp4", PushName: "Ana",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("message after failed enrichment (-want +got):\n%s", diff)
	}
}

func TestInbound_ProfilePictureIsCached(t *testing.T) {
	h := newHarnessWith(t, func(d *Deps) {
		d.Profiles = cache.NewMemoryCache(d.Clock, 0)
	})
	c := h.startConnected("s1")
	c.SetProfilePicture(peer, "https://pps.example/v1.jpg")

	require.True(t, c.Emit(ports.MessageReceived{Message: inbound("m1", ports.MessageContent{Text: "one"})}))
	h.waitMessages(1)
	c.SetProfilePicture(peer, "https://pps.example/v2.jpg")
	require.True(t, c.Emit(ports.MessageReceived{Message: inbound("m2", ports.MessageContent{Text: "two"})}))
	msgs := h.waitMessages(2)
	assert.Equal(t, "https://pps.example/v1.jpg", msgs[1].ProfilePicURL)

	h.clock.Advance(time.Hour + time.Second)
	require.True(t, c.Emit(ports.MessageReceived{Message: inbound("m3", ports.MessageContent{Text: "three"})}))
	msgs = h.waitMessages(3)
	assert.Equal(t, "https://pps.example/v2.jpg", msgs[2].ProfilePicURL)
}

func TestInbound_SkipsEmptyContent(t *testing.T) {
	h := newHarness(t)
	c := h.startConnected("s1")

	require.True(t, c.Emit(ports.MessageReceived{Message: inbound("skip", ports.MessageContent{})}))
	require.True(t, c.Emit(ports.MessageReceived{Message: inbound("m1", ports.MessageContent{Text: "x"})}))

	msgs := h.waitMessages(1)
	h.drain()
	require.Len(t, h.messages(), 1)
	assert.Equal(t, "m1", msgs[0].ID)
}

func TestInbound_ReactionContactAndGroupEvents(t *testing.T) {
	h := newHarness(t)
	c := h.startConnected("s1")

	require.True(t, c.Emit(ports.Reaction{Chat: peer, MessageID: "m1", Emoji: "👍", Timestamp: epoch}))
	require.True(t, c.Emit(ports.ContactUpdated{JID: peer, Name: "Ana Souza", PushName: "Ana"}))
	require.True(t, c.Emit(ports.ContactUpdated{}))
	require.True(t, c.Emit(ports.GroupUpdated{JID: group, Name: "Support"}))
	require.Eventually(t, func() bool { return len(h.bus.Events(event.TypeContactUpdate)) == 2 }, waitFor, tick)

	reactions := decodeAll[event.ReactionPayload](t, h.bus.Events(event.TypeMessageReaction))
	assert.Equal(t, []event.ReactionPayload{{SessionID: "s1", MessageID: "m1", From: peer, Reaction: "👍", Timestamp: epoch.Unix()}}, reactions)

	contacts := decodeAll[event.ContactPayload](t, h.bus.Events(event.TypeContactUpdate))
	assert.Equal(t, event.ContactPayload{SessionID: "s1", ID: peer, Name: "Ana Souza", PushName: "Ana"}, contacts[0])
	assert.Equal(t, event.ContactPayload{SessionID: "s1", ID: group, Name: "Support", IsGroup: true}, contacts[1])
}

func TestInbound_HistoryBatch(t *testing.T) {
	tests := []struct {
		name       string
		start      command.StartSession
		progress   int
		wantStatus string
		wantMsgs   int
	}{
		{"sync off", command.StartSession{SessionID: "s1"}, 100, "", 0},
		{"partial", command.StartSession{SessionID: "s1", SyncHistory: true, SyncPeriod: 7}, 40, event.HistoryInProgress, 1},
		{"complete", command.StartSession{SessionID: "s1", SyncHistory: true, SyncPeriod: 7}, 100, event.HistoryCompleted, 1},
		{"no cutoff", command.StartSession{SessionID: "s1", SyncHistory: true}, 100, event.HistoryCompleted, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.start(tt.start)
			h.waitStatus("s1", model.StatusConnected, 1)
			c := h.conn.Last()

			recent := inbound("h1", ports.MessageContent{Text: "recent"})
			recent.Timestamp = epoch.AddDate(0, 0, -1)
			old := inbound("h2", ports.MessageContent{Text: "old"})
			old.Timestamp = epoch.AddDate(0, 0, -30)
			require.True(t, c.Emit(ports.HistoryBatch{Messages: []ports.InboundMessage{recent, old}, Progress: tt.progress}))
			h.drain()

			msgs := h.messages()
			require.Len(t, msgs, tt.wantMsgs)
			for _, m := range msgs {
				assert.True(t, m.IsHistory)
			}
			assert.True(t, c.Config().SyncHistory == tt.start.SyncHistory)

			statuses := decodeAll[event.HistoryPayload](t, h.bus.Events(event.TypeHistoryStatus))
			if tt.wantStatus == "" {
				assert.Empty(t, statuses)
				return
			}
			require.Len(t, statuses, 1)
			assert.Equal(t, tt.wantStatus, statuses[0].Status)
			require.NotNil(t, statuses[0].Progress)
			assert.Equal(t, tt.progress, *statuses[0].Progress)
			assert.Equal(t, tt.wantMsgs, statuses[0].Messages)
		})
	}
}

func TestInbound_ConnectedStatusCarriesIdentity(t *testing.T) {
	h := newHarness(t)
	h.conn.Setup(func(c *protocoltest.Client) {
		c.SetProfilePicture(selfJID, "https://pps.example/me.jpg")
	})
	h.startConnected("s1")

	st := decodeAll[event.StatusPayload](t, h.bus.Events(event.TypeSessionStatus))
	require.Len(t, st, 2)
	assert.Equal(t, event.StatusPayload{SessionID: "s1", Status: model.StatusConnected, Number: "5511000000000", ProfilePicURL: "https://pps.example/me.jpg"}, st[1])
}
