// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/wabridge/internal/domain/session/command"
	"github.com/ManuGH/wabridge/internal/domain/session/event"
)

func (h *harness) contacts() []event.ContactPayload {
	return decodeAll[event.ContactPayload](h.t, h.bus.Events(event.TypeContactUpdate))
}

func TestSyncContact_EchoesContactID(t *testing.T) {
	h := newHarness(t)
	c := h.startConnected("s1")
	c.SetProfilePicture(peer, "https://pps.example/ana.jpg")

	require.NoError(t, h.orch.SyncContact(context.Background(), tenant, command.SyncContact{
		SessionID: "s1", Number: "5511888888888", ContactID: json.RawMessage(`{"id":42}`),
	}))

	got := h.contacts()
	require.Len(t, got, 1)
	assert.Equal(t, peer, got[0].ID)
	assert.JSONEq(t, `{"id":42}`, string(got[0].ContactID))
	assert.Equal(t, "https://pps.example/ana.jpg", got[0].ProfilePicURL)
	assert.False(t, got[0].IsGroup)
	assert.Equal(t, "wa.evt.t1.s1.contact.update", h.bus.Events(event.TypeContactUpdate)[0].RoutingKey)
}

func TestSyncContact_Group(t *testing.T) {
	h := newHarness(t)
	c := h.startConnected("s1")
	c.SetGroupName(group, "Support")

	require.NoError(t, h.orch.SyncContact(context.Background(), tenant, command.SyncContact{
		SessionID: "s1", Number: "120363000000000000", IsGroup: true, ContactID: json.RawMessage(`7`),
	}))

	got := h.contacts()
	require.Len(t, got, 1)
	assert.Equal(t, group, got[0].ID)
	assert.Equal(t, "Support", got[0].Name)
	assert.True(t, got[0].IsGroup)
	assert.Equal(t, "7", string(got[0].ContactID))
}

func TestSyncContact_UnknownSessionIsIgnored(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.orch.SyncContact(context.Background(), tenant, command.SyncContact{SessionID: "nope", Number: "1"}))
	assert.Empty(t, h.contacts())
}

func TestMarkAsRead(t *testing.T) {
	h := newHarness(t)
	c := h.startConnected("s1")
	ctx := context.Background()

	require.NoError(t, h.orch.MarkAsRead(ctx, tenant, command.MarkAsRead{SessionID: "s1", To: "5511888888888", MessageIDs: []string{"a", "b"}}))
	require.NoError(t, h.orch.MarkAsRead(ctx, tenant, command.MarkAsRead{SessionID: "s1", To: "5511888888888"}))
	require.NoError(t, h.orch.MarkAsRead(ctx, tenant, command.MarkAsRead{SessionID: "nope", To: "1", MessageIDs: []string{"c"}}))

	assert.Equal(t, map[string][]string{peer: {"a", "b"}}, c.Reads())
}

func TestImportContacts_PublishesNothing(t *testing.T) {
	h := newHarness(t)
	h.startConnected("s1")
	before := len(h.bus.Published())

	require.NoError(t, h.orch.ImportContacts(context.Background(), tenant, command.ImportContacts{SessionID: "s1"}))
	assert.Len(t, h.bus.Published(), before)
}

func TestSyncHistory_Unsupported(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.orch.SyncHistory(context.Background(), tenant, command.SyncHistory{
		SessionID: "s1", ContactNumber: "5511888888888",
		TicketID: json.RawMessage(`"T-9"`), ContactID: json.RawMessage(`42`),
	}))

	got := decodeAll[event.HistoryPayload](t, h.bus.Events(event.TypeHistoryStatus))
	require.Len(t, got, 1)
	assert.Equal(t, event.HistoryUnsupported, got[0].Status)
	assert.Equal(t, `"T-9"`, string(got[0].TicketID))
	assert.Equal(t, "42", string(got[0].ContactID))
	assert.Nil(t, got[0].Progress)
}
