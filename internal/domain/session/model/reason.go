// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "strconv"

// DisconnectReason is the status code attached to a protocol connection close.
// Values follow the protocol's own numbering.
type DisconnectReason int

const (
	ReasonUnknown            DisconnectReason = 0
	ReasonLoggedOut          DisconnectReason = 401
	ReasonForbidden          DisconnectReason = 403
	ReasonClientOutdated     DisconnectReason = 405
	ReasonConnectionLost     DisconnectReason = 408
	ReasonConnectionClosed   DisconnectReason = 428
	ReasonConnectionReplaced DisconnectReason = 440
	ReasonBadSession         DisconnectReason = 500
	ReasonUnavailable        DisconnectReason = 503
	ReasonRestartRequired    DisconnectReason = 515
)

var reasonNames = map[DisconnectReason]string{
	ReasonUnknown:            "unknown",
	ReasonLoggedOut:          "logged_out",
	ReasonForbidden:          "forbidden",
	ReasonClientOutdated:     "client_outdated",
	ReasonConnectionLost:     "connection_lost",
	ReasonConnectionClosed:   "connection_closed",
	ReasonConnectionReplaced: "connection_replaced",
	ReasonBadSession:         "bad_session",
	ReasonUnavailable:        "unavailable",
	ReasonRestartRequired:    "restart_required",
}

func (r DisconnectReason) String() string {
	if n, ok := reasonNames[r]; ok {
		return n
	}
	return "code_" + strconv.Itoa(int(r))
}
