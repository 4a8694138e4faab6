// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package version

// Service is the canonical service name reported by /version and attached to logs.
const Service = "wabridge"

var (
	// Version is the current application version.
	// It should be populated by the build system (ldflags).
	Version = "v0.9.0"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"

	// LastUpdated is the human-facing release date reported by /version.
	LastUpdated = "2025-12-18"
)

// Info is the payload served by GET /version.
type Info struct {
	Service     string `json:"service"`
	Version     string `json:"version"`
	LastUpdated string `json:"lastUpdated"`
}

// Current returns the build information of the running binary.
func Current() Info {
	return Info{
		Service:     Service,
		Version:     Version,
		LastUpdated: LastUpdated,
	}
}
