// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/wabridge/internal/config"
	"github.com/ManuGH/wabridge/internal/daemon"
	"github.com/ManuGH/wabridge/internal/health"
	"github.com/ManuGH/wabridge/internal/log"
	"github.com/ManuGH/wabridge/internal/telemetry"
	"github.com/ManuGH/wabridge/internal/version"
)

// maskURL removes user info from a URL for safe logging.
func maskURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	return parsedURL.String()
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	path := *configPath
	if path == "" {
		path = resolveDefaultConfigPath()
	}

	cfg, err := config.NewLoader(path, version.Version).Load()
	if err != nil {
		bootLogger := log.WithComponent("daemon")
		bootLogger.Fatal().Err(err).
			Str(log.FieldEvent, "config.load_failed").
			Str("config_path", path).
			Msg("failed to load configuration")
	}

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: version.Version,
	})
	logger := log.WithComponent("daemon")

	logger.Info().
		Str(log.FieldEvent, "daemon.starting").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("config_path", path).
		Str("data_dir", cfg.DataDir).
		Str("sessions_dir", cfg.SessionsDir).
		Str("broker_driver", cfg.Broker.Driver).
		Str("broker_url", maskURL(cfg.Broker.URL)).
		Str("listen_addr", cfg.API.ListenAddr).
		Msg("starting wabridge")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().Err(err).Str(log.FieldEvent, "startup.check_failed").Msg("startup checks failed")
	}

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: version.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		logger.Fatal().Err(err).Str(log.FieldEvent, "telemetry.init_failed").Msg("failed to initialize telemetry")
	}

	comp, err := daemon.Build(cfg, daemon.Overrides{})
	if err != nil {
		logger.Fatal().Err(err).Str(log.FieldEvent, "daemon.build_failed").Msg("failed to wire components")
	}

	var holder *config.Holder
	if path != "" {
		holder = config.NewHolder(cfg, config.NewLoader(path, version.Version), path)
	}

	app, err := daemon.NewApp(comp, holder, cfg.API.ListenAddr, provider.Shutdown)
	if err != nil {
		logger.Fatal().Err(err).Str(log.FieldEvent, "daemon.init_failed").Msg("failed to create daemon")
	}

	if err := app.Run(ctx); err != nil {
		logger.Fatal().Err(err).Str(log.FieldEvent, "daemon.failed").Msg("daemon exited with error")
	}
	logger.Info().Str(log.FieldEvent, "daemon.exit").Msg("bye")
}
