// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package stanza

import (
	"strconv"

	"github.com/parley-chat/parley/lib/ref"
)

// Namespaces used by the builders. These identify the protocol
// extension each child element belongs to.
const (
	NSMUC        = "http://jabber.org/protocol/muc"
	NSMUCUser    = "http://jabber.org/protocol/muc#user"
	NSMUCOwner   = "http://jabber.org/protocol/muc#owner"
	NSMUCAdmin   = "http://jabber.org/protocol/muc#admin"
	NSDiscoItems = "http://jabber.org/protocol/disco#items"
	NSChatStates = "http://jabber.org/protocol/chatstates"
	NSArchive    = "urn:xmpp:mam:2"
	NSPaging     = "http://jabber.org/protocol/rsm"
	NSReactions  = "urn:xmpp:reactions:0"
	NSDataForm   = "jabber:x:data"
	NSStanzaID   = "urn:xmpp:sid:0"
	NSForward    = "urn:xmpp:forward:0"
	NSDelay      = "urn:xmpp:delay"
	NSReply      = "urn:xmpp:reply:0"

	// NSProfile is the module's own extension carrying sender profile
	// attributes on outgoing messages, so receiving clients can render
	// a display name and avatar without a directory lookup.
	NSProfile = "urn:parley:profile:0"
)

// Profile carries the sender identity attached to outgoing messages
// and typing notifications.
type Profile struct {
	FirstName string
	LastName  string
	Photo     string
	WalletID  string
}

// ParseProfile extracts the sender profile from a message's data
// child. Returns the zero Profile when the element is absent.
func ParseProfile(message *Element) Profile {
	data := message.ChildWithNS("data", NSProfile)
	if data == nil {
		return Profile{}
	}
	return Profile{
		FirstName: data.Attr("senderFirstName"),
		LastName:  data.Attr("senderLastName"),
		Photo:     data.Attr("photoURL"),
		WalletID:  data.Attr("senderWalletAddress"),
	}
}

func (p Profile) element() *Element {
	return New("data",
		"xmlns", NSProfile,
		"senderFirstName", p.FirstName,
		"senderLastName", p.LastName,
		"photoURL", p.Photo,
		"senderWalletAddress", p.WalletID,
	)
}

// NewJoinPresence builds the presence that joins (or re-asserts
// membership in) a room. The to attribute addresses the room with the
// sender's localpart as the occupant nickname; the MUC child marks the
// stanza as a join rather than a plain presence update.
func NewJoinPresence(from, room ref.JID, id string) *Element {
	occupant := room.Bare().String() + "/" + from.Localpart()
	return New("presence",
		"from", from.String(),
		"to", occupant,
		"id", id,
	).AddChild(New("x", "xmlns", NSMUC))
}

// NewLeavePresence builds the unavailable presence that exits a room.
func NewLeavePresence(from, room ref.JID, id string) *Element {
	occupant := room.Bare().String() + "/" + from.Localpart()
	return New("presence",
		"from", from.String(),
		"to", occupant,
		"type", "unavailable",
		"id", id,
	)
}

// NewIQ builds an empty iq stanza of the given type ("get" or "set").
func NewIQ(typ, id string, to string) *Element {
	iq := New("iq", "type", typ, "id", id)
	if to != "" {
		iq.SetAttr("to", to)
	}
	return iq
}

// NewRoomListQuery builds the directory query listing the rooms hosted
// by the conference service.
func NewRoomListQuery(id string, conferenceDomain string) *Element {
	return NewIQ("get", id, conferenceDomain).
		AddChild(New("query", "xmlns", NSDiscoItems))
}

// NewHistoryQuery builds a paged archive query for older messages in a
// room. max bounds the page size. beforeID, when non-empty, anchors the
// page immediately before that archive ID; empty fetches the newest
// page. The response pages arrive as individual forwarded messages
// followed by a fin iq echoing id.
func NewHistoryQuery(id string, room ref.JID, max int, beforeID string) *Element {
	paging := New("set", "xmlns", NSPaging).
		AddChild(New("max").SetText(strconv.Itoa(max)))
	// An empty before element means "newest page" in the paging
	// protocol, so the element is present either way.
	paging.AddChild(New("before").SetText(beforeID))

	return NewIQ("set", id, room.Bare().String()).
		AddChild(New("query", "xmlns", NSArchive, "queryid", id).AddChild(paging))
}

// NewMessage builds a groupchat message with the sender's profile
// attached. id is the client-generated correlation id; the server's
// archive echo carries it back alongside the server-assigned archive id.
func NewMessage(room ref.JID, id, body string, profile Profile) *Element {
	return New("message",
		"to", room.Bare().String(),
		"type", "groupchat",
		"id", id,
	).AddChild(
		New("body").SetText(body),
		profile.element(),
	)
}

// NewReaction builds a reaction message targeting a previously sent
// message. reactions is the complete desired reaction set from this
// sender — an empty list retracts all reactions.
func NewReaction(room ref.JID, id, targetMessageID string, reactions []string) *Element {
	set := New("reactions", "xmlns", NSReactions, "id", targetMessageID)
	for _, reaction := range reactions {
		set.AddChild(New("reaction").SetText(reaction))
	}
	return New("message",
		"to", room.Bare().String(),
		"type", "groupchat",
		"id", id,
	).AddChild(set)
}

// NewTyping builds a chat-state notification. composing true signals
// typing started; false signals it stopped.
func NewTyping(room ref.JID, id, fullName string, composing bool) *Element {
	state := "paused"
	if composing {
		state = "composing"
	}
	return New("message",
		"to", room.Bare().String(),
		"type", "groupchat",
		"id", id,
	).AddChild(
		New(state, "xmlns", NSChatStates),
		New("data", "xmlns", NSProfile, "fullName", fullName),
	)
}

// NewRoomConfig builds the owner configuration submission that names a
// freshly created room. Sent after the creating join presence.
func NewRoomConfig(id string, room ref.JID, title, description string) *Element {
	form := New("x", "xmlns", NSDataForm, "type", "submit").AddChild(
		formField("FORM_TYPE", NSMUCOwner+"#roomconfig"),
		formField("muc#roomconfig_roomname", title),
		formField("muc#roomconfig_roomdesc", description),
		formField("muc#roomconfig_persistentroom", "1"),
	)
	return NewIQ("set", id, room.Bare().String()).
		AddChild(New("query", "xmlns", NSMUCOwner).AddChild(form))
}

func formField(name, value string) *Element {
	return New("field", "var", name).
		AddChild(New("value").SetText(value))
}

// NewInvite builds a mediated invitation routed through the room.
func NewInvite(id string, room, invitee ref.JID) *Element {
	return New("message",
		"to", room.Bare().String(),
		"id", id,
	).AddChild(
		New("x", "xmlns", NSMUCUser).AddChild(
			New("invite", "to", invitee.Bare().String()),
		),
	)
}

// NewMemberListQuery builds the admin query listing a room's members.
func NewMemberListQuery(id string, room ref.JID) *Element {
	return NewIQ("get", id, room.Bare().String()).
		AddChild(New("query", "xmlns", NSMUCAdmin).
			AddChild(New("item", "affiliation", "member")))
}
