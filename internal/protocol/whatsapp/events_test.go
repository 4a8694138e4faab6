// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package whatsapp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/ManuGH/wabridge/internal/domain/session/model"
	"github.com/ManuGH/wabridge/internal/domain/session/ports"
)

var (
	chatJID  = types.NewJID("5511888888888", types.DefaultUserServer)
	groupJID = types.NewJID("120363000000000000", types.GroupServer)
)

func TestTranslate_CloseReasons(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want model.DisconnectReason
	}{
		{"disconnected", &events.Disconnected{}, model.ReasonConnectionClosed},
		{"logged out", &events.LoggedOut{OnConnect: true}, model.ReasonLoggedOut},
		{"replaced", &events.StreamReplaced{}, model.ReasonConnectionReplaced},
		{"outdated", &events.ClientOutdated{}, model.ReasonClientOutdated},
		{"banned", &events.TemporaryBan{}, model.ReasonForbidden},
		{"connect failure", &events.ConnectFailure{Reason: events.ConnectFailureReason(503), Message: "down"}, model.ReasonUnavailable},
		{"stream error", &events.StreamError{Code: "515"}, model.ReasonRestartRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := translate(tt.in)
			require.True(t, ok)
			closed, ok := ev.(ports.ConnectionClosed)
			require.True(t, ok, "got %T", ev)
			assert.Equal(t, tt.want, closed.Reason)
		})
	}
}

func TestTranslate_Receipts(t *testing.T) {
	receipt := func(fromMe bool, typ types.ReceiptType, ids ...types.MessageID) *events.Receipt {
		return &events.Receipt{
			MessageSource: types.MessageSource{Chat: chatJID, Sender: chatJID, IsFromMe: fromMe},
			MessageIDs:    ids,
			Type:          typ,
		}
	}

	ev, ok := translate(receipt(false, types.ReceiptTypeRead, "A", "B"))
	require.True(t, ok)
	assert.Equal(t, ports.AckUpdate{Chat: chatJID.String(), MessageIDs: []string{"A", "B"}, Status: model.ProtoStatusRead}, ev)

	ev, ok = translate(receipt(false, types.ReceiptTypeDelivered, "A"))
	require.True(t, ok)
	assert.Equal(t, model.ProtoStatusDeliveryAck, ev.(ports.AckUpdate).Status)

	_, ok = translate(receipt(true, types.ReceiptTypeRead, "A"))
	assert.False(t, ok, "own-device receipts are skipped")
	_, ok = translate(receipt(false, types.ReceiptTypeRead))
	assert.False(t, ok, "receipt without ids")
	_, ok = translate(receipt(false, types.ReceiptTypeRetry, "A"))
	assert.False(t, ok, "retry receipts carry no status")
}

func TestReceiptStatus(t *testing.T) {
	tests := []struct {
		in   types.ReceiptType
		want int
		ok   bool
	}{
		{types.ReceiptTypeDelivered, model.ProtoStatusDeliveryAck, true},
		{types.ReceiptTypeRead, model.ProtoStatusRead, true},
		{types.ReceiptTypePlayed, model.ProtoStatusPlayed, true},
		{types.ReceiptTypeServerError, model.ProtoStatusError, true},
		{types.ReceiptTypeSender, 0, false},
	}
	for _, tt := range tests {
		got, ok := receiptStatus(tt.in)
		assert.Equal(t, tt.ok, ok, string(tt.in))
		assert.Equal(t, tt.want, got, string(tt.in))
	}
}

func TestTranslate_ContactsAndGroups(t *testing.T) {
	ev, ok := translate(&events.PushName{JID: types.NewADJID("5511888888888", 0, 3), NewPushName: "Ana"})
	require.True(t, ok)
	assert.Equal(t, ports.ContactUpdated{JID: chatJID.String(), PushName: "Ana"}, ev)

	ev, ok = translate(&events.GroupInfo{JID: groupJID, Name: &types.GroupName{Name: "Support"}})
	require.True(t, ok)
	assert.Equal(t, ports.GroupUpdated{JID: groupJID.String(), Name: "Support"}, ev)

	_, ok = translate(&events.GroupInfo{JID: groupJID})
	assert.False(t, ok, "group change without a new name")

	_, ok = translate(&events.OfflineSyncCompleted{})
	assert.False(t, ok)
}

func TestInboundFrom(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	info := types.MessageInfo{
		MessageSource: types.MessageSource{
			Chat:      groupJID,
			Sender:    types.NewADJID("5511888888888", 0, 2),
			SenderAlt: types.NewJID("123456789", types.HiddenUserServer),
			IsGroup:   true,
		},
		ID:        "3EB0ABCDEF0123456789",
		PushName:  "Ana",
		Timestamp: ts,
	}

	msg := inboundFrom(info, ports.MessageContent{Text: "hi"})
	assert.Equal(t, ports.InboundMessage{
		ID:        "3EB0ABCDEF0123456789",
		Chat:      groupJID.String(),
		Sender:    chatJID.String(),
		SenderAlt: "123456789@lid",
		IsGroup:   true,
		PushName:  "Ana",
		Timestamp: ts,
		Content:   ports.MessageContent{Text: "hi"},
	}, msg)

	info.SenderAlt = types.EmptyJID
	assert.Empty(t, inboundFrom(info, ports.MessageContent{}).SenderAlt)
}

func TestLIDJID(t *testing.T) {
	assert.Equal(t, "123456@lid", lidJID("123456").String())
	assert.Equal(t, "123456@lid", lidJID("123456@lid").String())
	assert.Equal(t, "5511", digitsOnly("+55 (11)"))
}
