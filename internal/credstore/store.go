// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package credstore persists per-session auth state, one directory per session.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/ManuGH/wabridge/internal/domain/session/model"
	"github.com/ManuGH/wabridge/internal/domain/session/ports"
	xlog "github.com/ManuGH/wabridge/internal/log"
)

const credsFile = "creds.json"

// ErrUnsafeSessionID is returned for ids that cannot be used as a directory name.
var ErrUnsafeSessionID = errors.New("unsafe session id")

// Store is a filesystem credential store rooted at a fixed directory.
type Store struct {
	root   string
	logger zerolog.Logger
}

// New returns a store rooted at root, creating it if needed.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create credential root: %w", err)
	}
	return &Store{root: root, logger: xlog.WithComponent("credstore")}, nil
}

func (s *Store) path(sessionID string) (string, error) {
	if !model.IsSafeSessionID(sessionID) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeSessionID, sessionID)
	}
	return filepath.Join(s.root, sessionID), nil
}

// Dir returns the session directory, creating it when missing.
func (s *Store) Dir(sessionID string) (string, error) {
	dir, err := s.path(sessionID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}
	return dir, nil
}

// Load returns the stored state, or an empty state when nothing was saved yet.
func (s *Store) Load(sessionID string) (ports.AuthState, error) {
	dir, err := s.path(sessionID)
	if err != nil {
		return ports.AuthState{}, err
	}
	data, err := os.ReadFile(filepath.Join(dir, credsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return ports.AuthState{}, nil
	}
	if err != nil {
		return ports.AuthState{}, fmt.Errorf("read credentials: %w", err)
	}
	var st ports.AuthState
	if err := json.Unmarshal(data, &st); err != nil {
		return ports.AuthState{}, fmt.Errorf("decode credentials: %w", err)
	}
	return st, nil
}

// Save atomically replaces the stored state.
func (s *Store) Save(sessionID string, state ports.AuthState) error {
	dir, err := s.Dir(sessionID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(dir, credsFile), data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	s.logger.Debug().Str(xlog.FieldSessionID, sessionID).Bool("registered", state.Registered).Msg("credentials saved")
	return nil
}

// Wipe removes the session directory. Missing directories are not an error.
func (s *Store) Wipe(sessionID string) error {
	dir, err := s.path(sessionID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("wipe session dir: %w", err)
	}
	s.logger.Info().Str(xlog.FieldSessionID, sessionID).Str(xlog.FieldEvent, "credentials.wiped").Msg("credential directory removed")
	return nil
}

// Exists reports whether a session directory is present.
func (s *Store) Exists(sessionID string) bool {
	dir, err := s.path(sessionID)
	if err != nil {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

var _ ports.CredentialStore = (*Store)(nil)
