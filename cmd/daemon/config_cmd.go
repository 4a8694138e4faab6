// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/wabridge/internal/config"
	"github.com/ManuGH/wabridge/internal/version"
)

const redacted = "***"

func runConfigCLI(args []string) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage()
		return 0
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:])
	case "dump":
		return runConfigDump(args[1:], os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown subcommand: %s\n\n", args[0])
		printConfigUsage()
		return 2
	}
}

func printConfigUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  wabridge config validate [--file|-f config.yaml]")
	fmt.Fprintln(os.Stderr, "  wabridge config dump [--file|-f config.yaml] [--format=yaml|json]")
}

// resolveDefaultConfigPath looks for config.yaml in $WABRIDGE_DATA_DIR.
func resolveDefaultConfigPath() string {
	dataDir := strings.TrimSpace(os.Getenv("WABRIDGE_DATA_DIR"))
	if dataDir == "" {
		return ""
	}
	autoPath := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(autoPath); err == nil {
		return autoPath
	}
	return ""
}

func configFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var file string
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	return fs, &file
}

func runConfigValidate(args []string) int {
	fs, file := configFlags("wabridge config validate")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	configPath := strings.TrimSpace(*file)
	if configPath == "" {
		configPath = resolveDefaultConfigPath()
	}

	if _, err := config.NewLoader(configPath, version.Version).Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error in %q:\n  %v\n", configPath, err)
		return 1
	}

	if configPath == "" {
		fmt.Println("defaults and environment are valid")
	} else {
		fmt.Printf("%s is valid\n", configPath)
	}
	return 0
}

// runConfigDump prints the effective configuration (defaults, file, env)
// with secrets redacted.
func runConfigDump(args []string, out io.Writer) int {
	fs, file := configFlags("wabridge config dump")
	var format string
	fs.StringVar(&format, "format", "yaml", "output format: yaml or json")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	configPath := strings.TrimSpace(*file)
	if configPath == "" {
		configPath = resolveDefaultConfigPath()
	}

	cfg, err := config.NewLoader(configPath, version.Version).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error in %q:\n  %v\n", configPath, err)
		return 1
	}
	fileCfg := fileConfigFromAppConfig(cfg)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(fileCfg); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode YAML: %v\n", err)
			return 1
		}
		_ = enc.Close()
		return 0
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(fileCfg); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unsupported format: %s (use yaml or json)\n", format)
		return 2
	}
}

func fileConfigFromAppConfig(cfg config.AppConfig) config.FileConfig {
	s := cfg.Session
	return config.FileConfig{
		DataDir:     cfg.DataDir,
		SessionsDir: cfg.SessionsDir,
		LogLevel:    cfg.LogLevel,
		LogService:  cfg.LogService,
		API: &config.APIFileConfig{
			ListenAddr:     cfg.API.ListenAddr,
			RateLimit:      &cfg.API.RateLimit,
			MetricsEnabled: &cfg.API.MetricsEnabled,
		},
		Broker: &config.BrokerFileConfig{
			Driver:          cfg.Broker.Driver,
			URL:             maskURL(cfg.Broker.URL),
			CommandExchange: cfg.Broker.CommandExchange,
			EventExchange:   cfg.Broker.EventExchange,
			CommandPrefix:   cfg.Broker.CommandPrefix,
			EventPrefix:     cfg.Broker.EventPrefix,
			ReconnectDelay:  cfg.Broker.ReconnectDelay.String(),
			Prefetch:        &cfg.Broker.Prefetch,
		},
		Redis: &config.RedisFileConfig{
			Addr:     cfg.Redis.Addr,
			Password: redact(cfg.Redis.Password),
			DB:       &cfg.Redis.DB,
		},
		Session: &config.SessionFileConfig{
			ReconnectBase:          s.ReconnectBase.String(),
			ReconnectMax:           s.ReconnectMax.String(),
			MaxRetries:             &s.MaxRetries,
			PairingMaxRetries:      &s.PairingMaxRetries,
			PairingFallback:        s.PairingFallback.String(),
			PairingRequestAttempts: &s.PairingRequestAttempts,
			DedupTTL:               s.DedupTTL.String(),
			ForceRestartDelay:      s.ForceRestartDelay.String(),
			ClientName:             s.ClientName,
			PairingClientName:      s.PairingClientName,
			CommandConcurrency:     &s.CommandConcurrency,
			ProfileCacheTTL:        s.ProfileCacheTTL.String(),
			ProfileCacheBackend:    s.ProfileCacheBackend,
			EnrichmentTimeout:      s.EnrichmentTimeout.String(),
		},
		Telemetry: &config.TelemetryFileConfig{
			Enabled:      &cfg.Telemetry.Enabled,
			Exporter:     cfg.Telemetry.Exporter,
			Endpoint:     cfg.Telemetry.Endpoint,
			SamplingRate: &cfg.Telemetry.SamplingRate,
		},
	}
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return redacted
}
