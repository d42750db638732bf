// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package stanza

import (
	"testing"

	"github.com/parley-chat/parley/lib/ref"
)

var (
	testUser = ref.MustParseJID("alice@example.com")
	testRoom = ref.MustParseJID("standup@conference.example.com")
)

func TestNewJoinPresence(t *testing.T) {
	presence := NewJoinPresence(testUser, testRoom, "join1")
	if !presence.Is("presence") {
		t.Fatalf("name = %q", presence.Name)
	}
	if got := presence.Attr("to"); got != "standup@conference.example.com/alice" {
		t.Errorf("to = %q — occupant nickname must be the sender localpart", got)
	}
	if presence.Attr("id") != "join1" {
		t.Errorf("id = %q", presence.Attr("id"))
	}
	if presence.ChildWithNS("x", NSMUC) == nil {
		t.Error("join presence missing MUC child")
	}
}

func TestNewLeavePresence(t *testing.T) {
	presence := NewLeavePresence(testUser, testRoom, "leave1")
	if presence.Attr("type") != "unavailable" {
		t.Errorf("type = %q", presence.Attr("type"))
	}
	if presence.Attr("to") != "standup@conference.example.com/alice" {
		t.Errorf("to = %q", presence.Attr("to"))
	}
}

func TestNewHistoryQuery(t *testing.T) {
	t.Run("newest page", func(t *testing.T) {
		query := NewHistoryQuery("q1", testRoom, 10, "")
		if query.Attr("type") != "set" {
			t.Errorf("iq type = %q", query.Attr("type"))
		}
		archive := query.ChildWithNS("query", NSArchive)
		if archive == nil {
			t.Fatal("missing archive query child")
		}
		if archive.Attr("queryid") != "q1" {
			t.Errorf("queryid = %q", archive.Attr("queryid"))
		}
		paging := archive.ChildWithNS("set", NSPaging)
		if paging == nil {
			t.Fatal("missing paging set")
		}
		if paging.ChildText("max") != "10" {
			t.Errorf("max = %q", paging.ChildText("max"))
		}
		if paging.Child("before") == nil {
			t.Error("newest-page query must still carry an empty before element")
		}
	})

	t.Run("anchored page", func(t *testing.T) {
		query := NewHistoryQuery("q2", testRoom, 10, "arch-42")
		paging := query.ChildWithNS("query", NSArchive).ChildWithNS("set", NSPaging)
		if paging.ChildText("before") != "arch-42" {
			t.Errorf("before = %q", paging.ChildText("before"))
		}
	})
}

func TestNewMessage(t *testing.T) {
	message := NewMessage(testRoom, "m1", "hello", Profile{FirstName: "Alice", LastName: "Adams"})
	if message.Attr("type") != "groupchat" {
		t.Errorf("type = %q", message.Attr("type"))
	}
	if message.ChildText("body") != "hello" {
		t.Errorf("body = %q", message.ChildText("body"))
	}
	data := message.ChildWithNS("data", NSProfile)
	if data == nil {
		t.Fatal("missing profile data child")
	}
	if data.Attr("senderLastName") != "Adams" {
		t.Errorf("senderLastName = %q", data.Attr("senderLastName"))
	}
}

func TestNewReaction(t *testing.T) {
	message := NewReaction(testRoom, "m2", "target-7", []string{"👍", "🎉"})
	set := message.ChildWithNS("reactions", NSReactions)
	if set == nil {
		t.Fatal("missing reactions child")
	}
	if set.Attr("id") != "target-7" {
		t.Errorf("target id = %q", set.Attr("id"))
	}
	if len(set.Children) != 2 {
		t.Fatalf("reaction count = %d", len(set.Children))
	}
	if set.Children[0].Text != "👍" {
		t.Errorf("first reaction = %q", set.Children[0].Text)
	}

	// Empty set retracts — the reactions element is present but bare.
	retract := NewReaction(testRoom, "m3", "target-7", nil)
	if got := retract.ChildWithNS("reactions", NSReactions); got == nil || len(got.Children) != 0 {
		t.Error("retraction must carry an empty reactions element")
	}
}

func TestNewTyping(t *testing.T) {
	started := NewTyping(testRoom, "t1", "Alice Adams", true)
	if started.ChildWithNS("composing", NSChatStates) == nil {
		t.Error("composing child missing")
	}
	stopped := NewTyping(testRoom, "t2", "Alice Adams", false)
	if stopped.ChildWithNS("paused", NSChatStates) == nil {
		t.Error("paused child missing")
	}
}

func TestNewRoomConfig(t *testing.T) {
	config := NewRoomConfig("c1", testRoom, "Standup", "daily sync")
	form := config.ChildWithNS("query", NSMUCOwner).ChildWithNS("x", NSDataForm)
	if form == nil {
		t.Fatal("missing config form")
	}
	var title string
	for _, field := range form.Children {
		if field.Attr("var") == "muc#roomconfig_roomname" {
			title = field.ChildText("value")
		}
	}
	if title != "Standup" {
		t.Errorf("room title field = %q", title)
	}
}

func TestNewInvite(t *testing.T) {
	invite := NewInvite("i1", testRoom, ref.MustParseJID("bob@example.com/laptop"))
	inner := invite.ChildWithNS("x", NSMUCUser).Child("invite")
	if inner == nil {
		t.Fatal("missing invite child")
	}
	if inner.Attr("to") != "bob@example.com" {
		t.Errorf("invite to = %q — must be the bare JID", inner.Attr("to"))
	}
}
