// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package stanza models the discrete structured message units exchanged
// over a chat session's transport, and the builders for every unit this
// module sends.
//
// A stanza is an XML element tree: [Element] holds the name, attributes,
// children, and character data. The three protocol families — message,
// presence, and iq (info/query, the request/response family) — are all
// plain Elements; builders such as [NewJoinPresence] and
// [NewHistoryQuery] construct the exact shapes the server expects.
//
// Correlation between a request and its response is structural, not
// positional: responses echo the request's id attribute, or carry
// provenance attributes (a presence echo's "from" starts with the room
// JID). The session package matches inbound Elements against pending
// requests using predicates over this structure.
//
// Protocol-level failures arrive as stanzas with type="error" carrying
// an <error> child. [ParseError] extracts them into [*Error] values;
// [IsCondition] tests for a specific defined condition.
package stanza
