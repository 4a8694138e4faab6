// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package whatsapp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/store"

	"github.com/ManuGH/wabridge/internal/domain/session/ports"
)

func TestNewConnector_AnnouncesClientName(t *testing.T) {
	prevOS, fullSync := store.DeviceProps.GetOs(), store.DeviceProps.GetRequireFullSync()
	t.Cleanup(func() {
		store.SetOSInfo(prevOS, store.GetWAVersion())
		NewConnector(Options{FullHistory: fullSync})
	})

	NewConnector(Options{ClientName: "wabridge-test", FullHistory: true})
	assert.Equal(t, "wabridge-test", store.DeviceProps.GetOs())
	assert.True(t, store.DeviceProps.GetRequireFullSync())

	// an empty name keeps whatever was announced before
	NewConnector(Options{})
	assert.Equal(t, "wabridge-test", store.DeviceProps.GetOs())
	assert.False(t, store.DeviceProps.GetRequireFullSync())
}

func TestConnector_OpenRequiresDir(t *testing.T) {
	_, err := NewConnector(Options{}).Open(context.Background(), ports.ConnectConfig{SessionID: "s1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty credential dir")
}
