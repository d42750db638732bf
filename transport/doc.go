// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport provides the bidirectional stanza stream a session
// runs over.
//
// [Conn] is one authenticated stream: serialized writes, a channel of
// inbound stanzas, and disconnect detection via Done/Err. [Dialer]
// produces Conns; Dial covers both the network connect and the
// authentication handshake, so a returned Conn carries stanzas
// immediately.
//
// Two implementations exist:
//
//   - [WebSocketDialer]: the production transport. One XML text frame
//     per stanza over a persistent WebSocket, SASL PLAIN
//     authentication on open, ping keepalive, and disconnect detection
//     through the read loop.
//   - [MemoryDialer]: an in-process transport for tests. The peer side
//     is scriptable — tests inject inbound stanzas, observe outbound
//     ones, and force disconnects or dial failures deterministically.
//
// The session layer owns exactly one Conn at a time and reconnects by
// dialing a replacement; Conns themselves never reconnect.
package transport
