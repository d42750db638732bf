// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"time"

	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/stanza"
)

// RoomDescriptor is one entry from a room listing.
type RoomDescriptor struct {
	JID         ref.JID
	Name        string
	Title       string
	Kind        string
	MemberCount int
}

// Message is one chat message, live or loaded from the archive.
type Message struct {
	// ID is the server-assigned archive id, stable across clients and
	// usable as a paging cursor. Falls back to the sender-assigned id
	// for messages the archive has not stamped.
	ID        string
	RoomJID   ref.JID
	From      string
	Body      string
	Profile   stanza.Profile
	Timestamp time.Time

	// ReplyTo is the archive id of the message this one replies to,
	// empty for top-level messages.
	ReplyTo string
}

// HistoryPage is the result of one archive query.
type HistoryPage struct {
	// Messages in chronological order, oldest first.
	Messages []Message

	// Complete reports that the archive holds nothing older than the
	// first message of this page.
	Complete bool
}

// MessageOptions configure an outgoing message.
type MessageOptions struct {
	Body    string
	Profile stanza.Profile

	// CustomID overrides the generated stanza id when set. Useful for
	// idempotent resends.
	CustomID string

	// ReplyTo links the message to an earlier one by archive id.
	ReplyTo string
}

// RoomMember is one entry from a room member listing.
type RoomMember struct {
	JID         ref.JID
	Nick        string
	Affiliation string
	Role        string
}
