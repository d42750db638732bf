// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package roomstore

import (
	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/session"
	"github.com/parley-chat/parley/stanza"
)

// Feed routes one unsolicited inbound stanza into the store: live
// messages, reaction updates, and typing notifications. Install it as
// the session client's OnStanza handler. Stanzas the store has no use
// for are ignored.
func (s *Store) Feed(el *stanza.Element) {
	if !el.Is("message") {
		return
	}
	from, err := ref.ParseJID(el.Attr("from"))
	if err != nil {
		return
	}
	roomID := from.Bare().String()
	nick := from.Resource()

	if set := el.ChildWithNS("reactions", stanza.NSReactions); set != nil {
		var reactions []string
		for _, child := range set.Children {
			if child.Is("reaction") && child.Text != "" {
				reactions = append(reactions, child.Text)
			}
		}
		s.ApplyReaction(roomID, set.Attr("id"), nick, reactions)
		return
	}

	if el.ChildWithNS("composing", stanza.NSChatStates) != nil {
		s.SetComposing(roomID, composerName(el, nick), true)
		return
	}
	for _, state := range []string{"paused", "active", "inactive", "gone"} {
		if el.ChildWithNS(state, stanza.NSChatStates) != nil {
			s.SetComposing(roomID, composerName(el, nick), false)
			return
		}
	}

	if msg, ok := session.ParseMessage(el); ok {
		s.AppendLive(msg)
	}
}

// composerName prefers the display name attached to the typing
// notification over the bare occupant nickname.
func composerName(el *stanza.Element, nick string) string {
	if data := el.ChildWithNS("data", stanza.NSProfile); data != nil {
		if name := data.Attr("fullName"); name != "" {
			return name
		}
	}
	return nick
}
