// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the daemon's operational HTTP surface: build version,
// probes and Prometheus metrics. Sessions are driven through the broker only.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/wabridge/internal/api/middleware"
	"github.com/ManuGH/wabridge/internal/health"
	"github.com/ManuGH/wabridge/internal/log"
	"github.com/ManuGH/wabridge/internal/version"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Config configures the HTTP server.
type Config struct {
	ListenAddr     string
	RateLimit      int // requests per minute per client IP, 0 disables
	MetricsEnabled bool
	// TracingService names HTTP spans; empty disables tracing.
	TracingService string
}

// Server is the operational HTTP server.
type Server struct {
	cfg    Config
	health *health.Manager
	router chi.Router
}

func New(cfg Config, hm *health.Manager) *Server {
	s := &Server{cfg: cfg, health: hm}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:      s.cfg.MetricsEnabled,
		TracingService:     s.cfg.TracingService,
		EnableLogging:      true,
		RateLimitPerMinute: s.cfg.RateLimit,
	})

	r.Get("/version", handleVersion)
	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	if s.cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(version.Current()); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Str(log.FieldEvent, "version.encode_error").Msg("failed to encode version")
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	logger := log.WithComponent("api")
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	logger.Info().Str(log.FieldEvent, "api.listening").Str("addr", ln.Addr().String()).Msg("http server listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info().Str(log.FieldEvent, "api.stopped").Msg("http server stopped")
	return nil
}
