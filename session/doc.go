// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package session maintains one live, authenticated stanza connection
// per account and multiplexes every higher-level chat operation over
// it.
//
// [Client] owns the connection lifecycle: it holds at most one
// transport.Conn at a time, exposes the current [Status] (offline,
// connecting, online, error), and re-establishes the connection on
// demand. [Client.Reconnect] is single-flight — concurrent callers
// while a connect is in progress are no-ops, so there is never more
// than one transport establishment in flight. Reconnect does not
// schedule its own retries: it increments an attempt counter and
// exposes the exponential backoff delay via [Client.ReconnectDelay],
// leaving the retry decision to the caller.
//
// [Client.Request] is the correlated request primitive. The transport
// delivers a single ordered inbound stream shared by every concurrent
// exchange, and replies interleave arbitrarily, so correlation is by
// content: each request registers a predicate over inbound stanzas,
// and the dispatch loop tests every inbound stanza against the pending
// predicates in registration order — first match wins. A request
// resolves exactly once: with the matching stanza, with
// [ErrRequestTimeout], or with [ErrConnection] when the link drops,
// never more than one of these. Stanzas matching no pending request go
// to the handler installed with [Client.OnStanza].
//
// The operation surface (join presence, room listing, message send,
// reactions, paged history, room management) is built entirely on
// Request, so every operation is gated through EnsureConnected and no
// component ever touches the transport directly.
package session
