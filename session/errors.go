// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by every operation after Close. Requests
	// still pending when Close is called fail with this error.
	ErrClosed = errors.New("session: client closed")

	// ErrConnection reports that the connection is down or dropped
	// while an exchange was in flight. Match with errors.Is.
	ErrConnection = errors.New("session: connection error")

	// ErrConnectionTimeout is returned by EnsureConnected when a
	// connect in progress does not settle within the connect timeout.
	ErrConnectionTimeout = errors.New("session: timed out waiting for connection")

	// ErrRequestTimeout is returned by Request when no inbound stanza
	// matches the predicate within the request timeout.
	ErrRequestTimeout = errors.New("session: request timed out")
)

// connectionError wraps cause so it matches ErrConnection.
func connectionError(cause error) error {
	if cause == nil {
		return ErrConnection
	}
	return fmt.Errorf("%w: %v", ErrConnection, cause)
}
