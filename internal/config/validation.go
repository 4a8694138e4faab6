// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/wabridge/internal/validate"
)

// Validate validates an AppConfig using the centralized validation package.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.Directory("DataDir", cfg.DataDir, false)
	v.Directory("SessionsDir", cfg.SessionsDir, false)
	v.LogLevel("LogLevel", cfg.LogLevel)
	v.ListenAddr("API.ListenAddr", cfg.API.ListenAddr)
	if cfg.API.RateLimit < 0 {
		v.AddError("API.RateLimit", "value cannot be negative", cfg.API.RateLimit)
	}

	v.OneOf("Broker.Driver", cfg.Broker.Driver, []string{BrokerAMQP, BrokerRedis, BrokerMemory})
	if cfg.Broker.Driver == BrokerAMQP {
		v.URL("Broker.URL", cfg.Broker.URL, []string{"amqp", "amqps"})
		v.NotEmpty("Broker.CommandExchange", cfg.Broker.CommandExchange)
		v.NotEmpty("Broker.EventExchange", cfg.Broker.EventExchange)
		v.Range("Broker.Prefetch", cfg.Broker.Prefetch, 1, 10000)
	}
	if cfg.Broker.Driver == BrokerRedis || cfg.Session.ProfileCacheBackend == CacheRedis {
		v.NotEmpty("Redis.Addr", cfg.Redis.Addr)
	}
	v.RoutingWord("Broker.CommandPrefix", cfg.Broker.CommandPrefix)
	v.RoutingWord("Broker.EventPrefix", cfg.Broker.EventPrefix)
	v.DurationRange("Broker.ReconnectDelay", cfg.Broker.ReconnectDelay, 100*time.Millisecond, 5*time.Minute)

	s := cfg.Session
	v.DurationRange("Session.ReconnectBase", s.ReconnectBase, 10*time.Millisecond, time.Minute)
	v.DurationRange("Session.ReconnectMax", s.ReconnectMax, s.ReconnectBase, 10*time.Minute)
	v.Range("Session.MaxRetries", s.MaxRetries, 1, 100)
	v.Range("Session.PairingMaxRetries", s.PairingMaxRetries, 1, 100)
	v.Range("Session.PairingRequestAttempts", s.PairingRequestAttempts, 1, 10)
	v.DurationRange("Session.PairingFallback", s.PairingFallback, time.Second, 5*time.Minute)
	v.DurationRange("Session.DedupTTL", s.DedupTTL, time.Second, 10*time.Minute)
	v.DurationRange("Session.ForceRestartDelay", s.ForceRestartDelay, 0, 30*time.Second)
	v.DurationRange("Session.EnrichmentTimeout", s.EnrichmentTimeout, 100*time.Millisecond, time.Minute)
	v.NotEmpty("Session.ClientName", s.ClientName)
	v.NotEmpty("Session.PairingClientName", s.PairingClientName)
	v.Positive("Session.CommandConcurrency", s.CommandConcurrency)
	v.OneOf("Session.ProfileCacheBackend", s.ProfileCacheBackend, []string{CacheMemory, CacheRedis})

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			v.AddError("Telemetry.SamplingRate", "must be between 0 and 1", cfg.Telemetry.SamplingRate)
		}
	}

	return v.Err()
}
