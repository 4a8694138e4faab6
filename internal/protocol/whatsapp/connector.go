// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package whatsapp adapts the whatsmeow multi-device client to the session
// orchestrator's protocol ports. Each session keeps its device keys in a
// SQLite database inside its credential directory.
package whatsapp

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	// registers the "sqlite" database/sql driver
	_ "modernc.org/sqlite"

	"github.com/ManuGH/wabridge/internal/domain/session/ports"
	xlog "github.com/ManuGH/wabridge/internal/log"
)

const (
	deviceDB  = "device.db"
	sqlDriver = "sqlite"
)

// Options configures every client a Connector opens.
type Options struct {
	// ClientName is announced as the companion device's OS name.
	ClientName string
	// FullHistory asks the phone for a full history sync on first login.
	FullHistory bool
}

// Connector opens whatsmeow clients. Device properties are process-global in
// whatsmeow, so they are applied once here.
type Connector struct {
	logger zerolog.Logger
}

func NewConnector(opts Options) *Connector {
	if opts.ClientName != "" {
		store.SetOSInfo(opts.ClientName, store.GetWAVersion())
	}
	store.DeviceProps.RequireFullSync = proto.Bool(opts.FullHistory)
	return &Connector{logger: xlog.WithComponent("whatsapp")}
}

func (c *Connector) Version(context.Context) (string, error) {
	return store.GetWAVersion().String(), nil
}

// Open creates the session's device store and an unconnected client.
func (c *Connector) Open(ctx context.Context, cfg ports.ConnectConfig) (ports.Client, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("session %s: empty credential dir", cfg.SessionID)
	}
	logger := c.logger.With().Str(xlog.FieldSessionID, cfg.SessionID).Logger()

	dsn := "file:" + filepath.Join(cfg.Dir, deviceDB) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	container, err := sqlstore.New(ctx, sqlDriver, dsn, waLog.Zerolog(logger.With().Str("module", "store").Logger()))
	if err != nil {
		return nil, fmt.Errorf("open device store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}

	wa := whatsmeow.NewClient(device, waLog.Zerolog(logger.With().Str("module", "client").Logger()))
	// reconnects are decided by the orchestrator
	wa.EnableAutoReconnect = false

	cl := newClient(cfg, wa, container, logger)
	wa.AddEventHandler(cl.handleEvent)
	return cl, nil
}

var _ ports.Connector = (*Connector)(nil)
