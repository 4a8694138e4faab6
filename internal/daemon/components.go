// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon builds the runtime object graph from configuration and owns
// its lifecycle.
package daemon

import (
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ManuGH/wabridge/internal/api"
	"github.com/ManuGH/wabridge/internal/broker"
	"github.com/ManuGH/wabridge/internal/broker/amqp"
	"github.com/ManuGH/wabridge/internal/broker/memory"
	redisbroker "github.com/ManuGH/wabridge/internal/broker/redis"
	"github.com/ManuGH/wabridge/internal/cache"
	"github.com/ManuGH/wabridge/internal/clock"
	"github.com/ManuGH/wabridge/internal/config"
	"github.com/ManuGH/wabridge/internal/credstore"
	"github.com/ManuGH/wabridge/internal/domain/session/command"
	"github.com/ManuGH/wabridge/internal/domain/session/event"
	"github.com/ManuGH/wabridge/internal/domain/session/manager"
	"github.com/ManuGH/wabridge/internal/domain/session/ports"
	"github.com/ManuGH/wabridge/internal/health"
	"github.com/ManuGH/wabridge/internal/log"
	"github.com/ManuGH/wabridge/internal/protocol/whatsapp"
	"github.com/ManuGH/wabridge/internal/ratelimit"
	"github.com/ManuGH/wabridge/internal/resilience"
	"github.com/ManuGH/wabridge/internal/version"
)

const (
	profileCachePrefix  = "wabridge:profile:"
	cacheCleanup        = time.Minute
	breakerThreshold    = 5
	breakerResetTimeout = 30 * time.Second
)

// Overrides replace collaborators that would otherwise be built from config.
// Tests use them to run the full graph without a network.
type Overrides struct {
	Connector ports.Connector
	Transport broker.Transport
	Clock     clock.Clock
}

// Components is the wired object graph of one daemon process.
type Components struct {
	Transport    broker.Transport
	Redis        redis.UniversalClient
	Profiles     cache.Cache
	Credentials  *credstore.Store
	Orchestrator *manager.Orchestrator
	Executor     *command.Executor
	Dispatcher   *command.Dispatcher
	Health       *health.Manager
	API          *api.Server
}

// Build wires every component from cfg. Nothing touches the network yet.
func Build(cfg config.AppConfig, ov Overrides) (_ *Components, err error) {
	logger := log.WithComponent("daemon")
	clk := ov.Clock
	if clk == nil {
		clk = clock.Real()
	}

	c := &Components{}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	if needsRedis(cfg) {
		c.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	routing := broker.Routing{CommandPrefix: cfg.Broker.CommandPrefix, EventPrefix: cfg.Broker.EventPrefix}
	c.Transport = ov.Transport
	if c.Transport == nil {
		if c.Transport, err = newTransport(cfg.Broker, routing, c.Redis, clk, logger); err != nil {
			return nil, err
		}
	}

	if c.Profiles, err = newProfileCache(cfg.Session.ProfileCacheBackend, c.Redis, clk, logger); err != nil {
		return nil, err
	}

	if c.Credentials, err = credstore.New(cfg.SessionsDir); err != nil {
		return nil, fmt.Errorf("credential store: %w", err)
	}

	connector := ov.Connector
	if connector == nil {
		connector = whatsapp.NewConnector(whatsapp.Options{ClientName: cfg.Session.ClientName})
	}

	c.Orchestrator, err = manager.New(orchestratorConfig(cfg.Session), manager.Deps{
		Connector:      connector,
		Credentials:    c.Credentials,
		Events:         event.NewPublisher(c.Transport, routing, event.WithClock(clk)),
		Clock:          clk,
		Profiles:       c.Profiles,
		Breakers:       resilience.NewGroup("profile_lookup", breakerThreshold, breakerResetTimeout, resilience.WithClock(clk)),
		PairingLimiter: ratelimit.New(ratelimit.PairingConfig()),
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	c.Executor = command.NewExecutor(cfg.Session.CommandConcurrency)
	c.Dispatcher = command.NewDispatcher(c.Orchestrator, c.Executor)

	c.Health = health.NewManager(version.Version)
	c.Health.RegisterChecker(health.NewBrokerChecker(cfg.Broker.Driver, c.Transport.Connected))
	c.Health.RegisterChecker(health.NewSessionsChecker(c.Orchestrator.SessionCount))
	c.Health.RegisterChecker(health.NewDirChecker("sessions_dir", cfg.SessionsDir))

	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = version.Service
	}
	c.API = api.New(api.Config{
		ListenAddr:     cfg.API.ListenAddr,
		RateLimit:      cfg.API.RateLimit,
		MetricsEnabled: cfg.API.MetricsEnabled,
		TracingService: tracing,
	}, c.Health)

	logger.Info().
		Str(log.FieldEvent, "daemon.built").
		Str("broker", cfg.Broker.Driver).
		Str("profile_cache", cfg.Session.ProfileCacheBackend).
		Str("sessions_dir", cfg.SessionsDir).
		Msg("components wired")
	return c, nil
}

func needsRedis(cfg config.AppConfig) bool {
	return cfg.Broker.Driver == config.BrokerRedis || cfg.Session.ProfileCacheBackend == config.CacheRedis
}

func newTransport(b config.BrokerConfig, routing broker.Routing, rc redis.UniversalClient, clk clock.Clock, logger zerolog.Logger) (broker.Transport, error) {
	switch b.Driver {
	case config.BrokerAMQP:
		return amqp.New(amqp.Config{
			URL:             b.URL,
			CommandExchange: b.CommandExchange,
			EventExchange:   b.EventExchange,
			Routing:         routing,
			ReconnectDelay:  b.ReconnectDelay,
			Prefetch:        b.Prefetch,
			ConnectionName:  version.Service,
			Clock:           clk,
			Logger:          logger,
		})
	case config.BrokerRedis:
		return redisbroker.New(rc, redisbroker.Config{
			Routing:        routing,
			ReconnectDelay: b.ReconnectDelay,
			Clock:          clk,
			Logger:         logger,
		})
	case config.BrokerMemory:
		return memory.New(routing), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBrokerDriver, b.Driver)
}

func newProfileCache(backend string, rc redis.UniversalClient, clk clock.Clock, logger zerolog.Logger) (cache.Cache, error) {
	switch backend {
	case config.CacheMemory, "":
		return cache.NewMemoryCache(clk, cacheCleanup), nil
	case config.CacheRedis:
		return cache.NewRedisCache(rc, profileCachePrefix, logger), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCacheBackend, backend)
}

func orchestratorConfig(s config.SessionConfig) manager.Config {
	mc := manager.DefaultConfig()
	mc.ReconnectBase = s.ReconnectBase
	mc.ReconnectMax = s.ReconnectMax
	mc.MaxRetries = s.MaxRetries
	mc.PairingMaxRetries = s.PairingMaxRetries
	mc.PairingFallback = s.PairingFallback
	mc.PairingRequestAttempts = s.PairingRequestAttempts
	mc.DedupTTL = s.DedupTTL
	mc.ForceRestartDelay = s.ForceRestartDelay
	mc.ProfileCacheTTL = s.ProfileCacheTTL
	mc.EnrichmentTimeout = s.EnrichmentTimeout
	if s.PairingClientName != "" {
		mc.PairingClientName = s.PairingClientName
	}
	return mc
}

// Close releases what Build opened. The orchestrator and executor are shut
// down by App.Run.
func (c *Components) Close() error {
	var errs []error
	if c.Transport != nil {
		errs = append(errs, c.Transport.Close())
	}
	if c.Profiles != nil {
		errs = append(errs, c.Profiles.Close())
	}
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	return errors.Join(errs...)
}
