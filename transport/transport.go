// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"

	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/lib/secret"
	"github.com/parley-chat/parley/stanza"
)

// ErrConnClosed is returned by Send after the connection has been
// closed or has dropped.
var ErrConnClosed = errors.New("transport: connection closed")

// Credentials identify and authenticate one account. The Password
// buffer is read but never closed by a Dialer — the owning session
// retains it for re-authentication across reconnects.
type Credentials struct {
	JID      ref.JID
	Password *secret.Buffer
}

// Conn is one established, authenticated stanza stream. A Conn is
// single-owner: the session's connection manager holds it exclusively
// and no other component touches it directly.
type Conn interface {
	// Send writes one stanza to the stream. Writes are serialized
	// internally; Send is safe for concurrent use. Returns
	// ErrConnClosed once the stream is down.
	Send(ctx context.Context, el *stanza.Element) error

	// Receive returns the inbound stanza stream. The channel is
	// closed when the connection drops or is closed; after that,
	// Err reports the cause.
	Receive() <-chan *stanza.Element

	// Done is closed when the connection is no longer usable.
	Done() <-chan struct{}

	// Err returns the terminal error after Done is closed. A locally
	// initiated Close reports nil.
	Err() error

	// Close tears the connection down. Idempotent.
	Close() error
}

// Dialer establishes authenticated connections. Dial performs both the
// network connect and the stream authentication handshake: a returned
// Conn is ready to carry stanzas.
type Dialer interface {
	Dial(ctx context.Context, credentials Credentials) (Conn, error)
}
