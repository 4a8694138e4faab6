// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// StartOptions controls how a session is (re)started.
type StartOptions struct {
	Force          bool
	ClearAuth      bool
	UsePairingCode bool
	PhoneNumber    string
	KeepAlive      bool
	SyncHistory    bool
	SyncPeriodDays int
}
