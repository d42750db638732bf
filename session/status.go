// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package session

// Status is the connection state of a Client. Transitions:
// offline/error -> connecting on Reconnect, connecting -> online on a
// successful dial, connecting -> error on a failed one, and any state
// -> offline when the transport drops or the client is closed.
type Status int

const (
	StatusOffline Status = iota
	StatusConnecting
	StatusOnline
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOffline:
		return "offline"
	case StatusConnecting:
		return "connecting"
	case StatusOnline:
		return "online"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}
