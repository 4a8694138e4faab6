// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration management for wabridge.
package config

import "time"

// Broker drivers.
const (
	BrokerAMQP   = "amqp"
	BrokerRedis  = "redis"
	BrokerMemory = "memory"
)

// Profile picture cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// AppConfig is the fully resolved runtime configuration.
type AppConfig struct {
	Version     string
	DataDir     string
	SessionsDir string
	LogLevel    string
	LogService  string

	API       APIConfig
	Broker    BrokerConfig
	Redis     RedisConfig
	Session   SessionConfig
	Telemetry TelemetryConfig
}

// APIConfig configures the operational HTTP surface.
type APIConfig struct {
	ListenAddr     string
	RateLimit      int // requests per minute per client, 0 disables
	MetricsEnabled bool
}

// BrokerConfig configures the command/event transport.
type BrokerConfig struct {
	Driver          string
	URL             string
	CommandExchange string
	EventExchange   string
	CommandPrefix   string
	EventPrefix     string
	ReconnectDelay  time.Duration
	Prefetch        int
}

// RedisConfig is shared by the redis broker driver and the redis cache backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SessionConfig tunes the session orchestrator.
type SessionConfig struct {
	ReconnectBase          time.Duration
	ReconnectMax           time.Duration
	MaxRetries             int
	PairingMaxRetries      int
	PairingFallback        time.Duration
	PairingRequestAttempts int
	DedupTTL               time.Duration
	ForceRestartDelay      time.Duration
	ClientName             string
	PairingClientName      string
	CommandConcurrency     int
	ProfileCacheTTL        time.Duration
	ProfileCacheBackend    string
	EnrichmentTimeout      time.Duration
}

// TelemetryConfig mirrors telemetry.Config for file/env loading.
type TelemetryConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	SamplingRate float64
}

// FileConfig is the on-disk YAML representation. Pointer and zero values mean "not set".
type FileConfig struct {
	DataDir     string `yaml:"dataDir,omitempty"`
	SessionsDir string `yaml:"sessionsDir,omitempty"`
	LogLevel    string `yaml:"logLevel,omitempty"`
	LogService  string `yaml:"logService,omitempty"`

	API       *APIFileConfig       `yaml:"api,omitempty"`
	Broker    *BrokerFileConfig    `yaml:"broker,omitempty"`
	Redis     *RedisFileConfig     `yaml:"redis,omitempty"`
	Session   *SessionFileConfig   `yaml:"session,omitempty"`
	Telemetry *TelemetryFileConfig `yaml:"telemetry,omitempty"`
}

type APIFileConfig struct {
	ListenAddr     string `yaml:"listenAddr,omitempty"`
	RateLimit      *int   `yaml:"rateLimit,omitempty"`
	MetricsEnabled *bool  `yaml:"metricsEnabled,omitempty"`
}

type BrokerFileConfig struct {
	Driver          string `yaml:"driver,omitempty"`
	URL             string `yaml:"url,omitempty"`
	CommandExchange string `yaml:"commandExchange,omitempty"`
	EventExchange   string `yaml:"eventExchange,omitempty"`
	CommandPrefix   string `yaml:"commandPrefix,omitempty"`
	EventPrefix     string `yaml:"eventPrefix,omitempty"`
	ReconnectDelay  string `yaml:"reconnectDelay,omitempty"`
	Prefetch        *int   `yaml:"prefetch,omitempty"`
}

type RedisFileConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       *int   `yaml:"db,omitempty"`
}

type SessionFileConfig struct {
	ReconnectBase          string `yaml:"reconnectBase,omitempty"`
	ReconnectMax           string `yaml:"reconnectMax,omitempty"`
	MaxRetries             *int   `yaml:"maxRetries,omitempty"`
	PairingMaxRetries      *int   `yaml:"pairingMaxRetries,omitempty"`
	PairingFallback        string `yaml:"pairingFallback,omitempty"`
	PairingRequestAttempts *int   `yaml:"pairingRequestAttempts,omitempty"`
	DedupTTL               string `yaml:"dedupTTL,omitempty"`
	ForceRestartDelay      string `yaml:"forceRestartDelay,omitempty"`
	ClientName             string `yaml:"clientName,omitempty"`
	PairingClientName      string `yaml:"pairingClientName,omitempty"`
	CommandConcurrency     *int   `yaml:"commandConcurrency,omitempty"`
	ProfileCacheTTL        string `yaml:"profileCacheTTL,omitempty"`
	ProfileCacheBackend    string `yaml:"profileCacheBackend,omitempty"`
	EnrichmentTimeout      string `yaml:"enrichmentTimeout,omitempty"`
}

type TelemetryFileConfig struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
}
