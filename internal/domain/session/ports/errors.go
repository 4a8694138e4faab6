// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import "errors"

// Adapters wrap protocol failures in these so the orchestrator can classify
// them with errors.Is.
var (
	ErrNotConnected       = errors.New("protocol client not connected")
	ErrRateLimited        = errors.New("protocol rate limit exceeded")
	ErrRecipientNotFound  = errors.New("recipient not found in protocol directory")
	ErrUnsupportedContent = errors.New("unsupported message content")
	ErrClientClosed       = errors.New("protocol client closed")
)
