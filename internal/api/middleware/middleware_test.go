// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	req.RemoteAddr = ip + ":12345"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_EnforcesLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestLimit: 3, WindowSize: time.Minute})(okHandler())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "192.168.1.1").Code, "request %d", i+1)
	}

	rec := hit(h, "192.168.1.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, rateLimitBody, rec.Body.String())
}

func TestRateLimit_DifferentIPsIndependent(t *testing.T) {
	h := RateLimit(RateLimitConfig{RequestLimit: 1, WindowSize: time.Minute})(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2").Code)
}

func TestShouldTrace(t *testing.T) {
	for path, want := range map[string]bool{
		"/healthz":      false,
		"/readyz":       false,
		"/metrics":      false,
		"/version":      true,
		"/api/sessions": true,
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		assert.Equal(t, want, shouldTrace(req), path)
	}
}

func TestStatusWriter_CapturesFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}
	sw.WriteHeader(http.StatusTeapot)
	sw.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusTeapot, sw.status)

	implicit := &statusWriter{ResponseWriter: httptest.NewRecorder(), status: 0}
	_, _ = implicit.Write([]byte("x"))
	assert.Equal(t, http.StatusOK, implicit.status)
}

func TestNewRouter_RateLimitOptional(t *testing.T) {
	r := NewRouter(StackConfig{RateLimitPerMinute: 1})
	r.Get("/version", okHandler().ServeHTTP)
	assert.Equal(t, http.StatusOK, hit(r, "10.1.1.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(r, "10.1.1.1").Code)

	open := NewRouter(StackConfig{})
	open.Get("/version", okHandler().ServeHTTP)
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, hit(open, "10.1.1.1").Code)
	}
}
