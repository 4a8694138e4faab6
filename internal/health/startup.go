// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ManuGH/wabridge/internal/config"
	"github.com/ManuGH/wabridge/internal/log"
)

// PerformStartupChecks validates the environment before any session is started.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	for _, dir := range []string{cfg.DataDir, cfg.SessionsDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		if err := checkWritableDir(dir); err != nil {
			return fmt.Errorf("directory check failed: %w", err)
		}
		logger.Info().Str("path", dir).Msg("directory is writable")
	}

	if err := checkListenAddr(logger, cfg.API.ListenAddr); err != nil {
		return err
	}
	if err := checkBrokerURL(logger, cfg.Broker); err != nil {
		return err
	}

	logger.Info().Msg("all startup checks passed")
	return ctx.Err()
}

func checkListenAddr(logger zerolog.Logger, addr string) error {
	if addr == "" {
		logger.Warn().Msg("API listen address empty; HTTP surface disabled")
		return nil
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid API listen address %q: %w", addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid API listen port %q in %q", port, addr)
	}
	return nil
}

func checkBrokerURL(logger zerolog.Logger, b config.BrokerConfig) error {
	if b.Driver != config.BrokerAMQP {
		logger.Info().Str("driver", b.Driver).Msg("broker driver needs no URL")
		return nil
	}
	u, err := url.Parse(b.URL)
	if err != nil {
		return fmt.Errorf("invalid broker URL: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return fmt.Errorf("broker URL scheme must be amqp or amqps, got: %s", u.Scheme)
	}
	logger.Info().Str("host", u.Host).Msg("broker URL is valid")
	return nil
}
