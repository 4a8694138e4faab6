// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/wabridge/internal/health"
	"github.com/ManuGH/wabridge/internal/version"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestVersion(t *testing.T) {
	s := New(Config{}, health.NewManager(version.Version))

	rec := get(t, s.Handler(), "/version")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{
		"service":     "wabridge",
		"version":     version.Version,
		"lastUpdated": version.LastUpdated,
	}, body)
}

func TestProbes(t *testing.T) {
	connected := false
	hm := health.NewManager("v1")
	hm.RegisterChecker(health.NewBrokerChecker("memory", func() bool { return connected }))
	s := New(Config{}, hm)

	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/readyz").Code)

	connected = true
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/readyz").Code)
}

func TestMetricsEndpointOptional(t *testing.T) {
	off := New(Config{}, health.NewManager("v1"))
	assert.Equal(t, http.StatusNotFound, get(t, off.Handler(), "/metrics").Code)

	on := New(Config{MetricsEnabled: true}, health.NewManager("v1"))
	get(t, on.Handler(), "/version")
	rec := get(t, on.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wabridge_http_request_duration_seconds")
}

func TestNoOtherRoutes(t *testing.T) {
	s := New(Config{}, health.NewManager("v1"))
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/api/sessions").Code)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	s := New(Config{ListenAddr: "127.0.0.1:0"}, health.NewManager("v1"))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRun_ListenError(t *testing.T) {
	s := New(Config{ListenAddr: "256.0.0.1:bad"}, health.NewManager("v1"))
	assert.Error(t, s.Run(context.Background()))
}
