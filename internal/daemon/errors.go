// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import "errors"

var (
	// ErrUnknownBrokerDriver is returned for a broker driver other than amqp, redis or memory.
	ErrUnknownBrokerDriver = errors.New("unknown broker driver")

	// ErrUnknownCacheBackend is returned for a profile cache backend other than memory or redis.
	ErrUnknownCacheBackend = errors.New("unknown profile cache backend")

	// ErrMissingComponents is returned when an App is created without its components.
	ErrMissingComponents = errors.New("components are required")
)
