// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"testing"
	"time"

	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/stanza"
	"github.com/parley-chat/parley/transport"
)

// newOnlineClient returns a connected client and the server-side peer.
func newOnlineClient(t *testing.T) (*Client, *transport.Peer) {
	t.Helper()
	client, dialer, _ := newTestClient(t)
	if err := client.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	return client, dialer.LastPeer()
}

var testRoom = ref.MustParseJID("standup@conference.example.com")

func TestPresenceInRoom(t *testing.T) {
	client, peer := newOnlineClient(t)

	result := make(chan error, 1)
	go func() { result <- client.PresenceInRoom(context.Background(), testRoom) }()

	join := waitSent(t, peer)
	if !join.Is("presence") {
		t.Fatalf("sent %q, want presence", join.Name)
	}
	if got := join.Attr("to"); got != "standup@conference.example.com/alice" {
		t.Fatalf("join to = %q", got)
	}
	if join.ChildWithNS("x", stanza.NSMUC) == nil {
		t.Fatal("join presence is missing the muc marker")
	}

	peer.Deliver(stanza.New("presence",
		"from", "standup@conference.example.com/alice",
		"id", join.Attr("id"),
	))
	if err := <-result; err != nil {
		t.Fatalf("PresenceInRoom: %v", err)
	}
}

func TestPresenceInRoomDenied(t *testing.T) {
	client, peer := newOnlineClient(t)

	result := make(chan error, 1)
	go func() { result <- client.PresenceInRoom(context.Background(), testRoom) }()

	join := waitSent(t, peer)
	peer.Deliver(stanza.New("presence",
		"from", "standup@conference.example.com/alice",
		"id", join.Attr("id"),
		"type", "error",
	).AddChild(stanza.New("error", "type", "auth").
		AddChild(stanza.New("forbidden"))))

	err := <-result
	if !stanza.IsCondition(err, stanza.CondForbidden) {
		t.Fatalf("PresenceInRoom = %v, want forbidden condition", err)
	}
}

func TestListRooms(t *testing.T) {
	client, peer := newOnlineClient(t)

	result := make(chan []RoomDescriptor, 1)
	go func() {
		rooms, err := client.ListRooms(context.Background())
		if err != nil {
			t.Errorf("ListRooms: %v", err)
		}
		result <- rooms
	}()

	query := waitSent(t, peer)
	if got := query.Attr("to"); got != "conference.example.com" {
		t.Fatalf("query to = %q", got)
	}

	items := stanza.New("query", "xmlns", stanza.NSDiscoItems).AddChild(
		stanza.New("item",
			"jid", "standup@conference.example.com",
			"name", "Daily standup",
			"kind", "group",
			"users", "7",
		),
		stanza.New("item", "jid", "not a jid"),
		stanza.New("item", "jid", "random@conference.example.com"),
	)
	peer.Deliver(stanza.New("iq", "type", "result", "id", query.Attr("id")).AddChild(items))

	rooms := <-result
	if len(rooms) != 2 {
		t.Fatalf("got %d rooms, want 2 (malformed item skipped)", len(rooms))
	}
	first := rooms[0]
	if first.Name != "standup" || first.Title != "Daily standup" ||
		first.Kind != "group" || first.MemberCount != 7 {
		t.Fatalf("unexpected descriptor: %+v", first)
	}
}

func TestSendMessage(t *testing.T) {
	client, peer := newOnlineClient(t)

	result := make(chan string, 1)
	go func() {
		archiveID, err := client.SendMessage(context.Background(), testRoom, MessageOptions{
			Body:    "status update",
			Profile: stanza.Profile{FirstName: "Alice", LastName: "Doe"},
		})
		if err != nil {
			t.Errorf("SendMessage: %v", err)
		}
		result <- archiveID
	}()

	msg := waitSent(t, peer)
	if msg.ChildText("body") != "status update" {
		t.Fatalf("body = %q", msg.ChildText("body"))
	}
	if got := stanza.ParseProfile(msg).FirstName; got != "Alice" {
		t.Fatalf("profile first name = %q", got)
	}

	echo := stanza.New("message",
		"from", "standup@conference.example.com/alice",
		"id", msg.Attr("id"),
		"type", "groupchat",
	).AddChild(stanza.New("stanza-id", "xmlns", stanza.NSStanzaID, "id", "arch-42"))
	peer.Deliver(echo)

	if got := <-result; got != "arch-42" {
		t.Fatalf("archive id = %q, want arch-42", got)
	}
}

func TestSendMessageCustomID(t *testing.T) {
	client, peer := newOnlineClient(t)

	result := make(chan string, 1)
	go func() {
		archiveID, err := client.SendMessage(context.Background(), testRoom, MessageOptions{
			Body:     "resend",
			CustomID: "my-id",
			ReplyTo:  "arch-7",
		})
		if err != nil {
			t.Errorf("SendMessage: %v", err)
		}
		result <- archiveID
	}()

	msg := waitSent(t, peer)
	if msg.Attr("id") != "my-id" {
		t.Fatalf("stanza id = %q, want my-id", msg.Attr("id"))
	}
	if linked := msg.ChildWithNS("reply", stanza.NSReply); linked == nil || linked.Attr("id") != "arch-7" {
		t.Fatalf("missing reply linkage in %s", msg)
	}
	// Echo without an archive stamp falls back to the sender id.
	peer.Deliver(stanza.New("message",
		"from", "standup@conference.example.com/alice",
		"id", "my-id",
	))
	if got := <-result; got != "my-id" {
		t.Fatalf("archive id = %q, want my-id", got)
	}
}

func TestSendReaction(t *testing.T) {
	client, peer := newOnlineClient(t)

	result := make(chan error, 1)
	go func() {
		result <- client.SendReaction(context.Background(), testRoom, "arch-42", []string{"👍"})
	}()

	msg := waitSent(t, peer)
	set := msg.ChildWithNS("reactions", stanza.NSReactions)
	if set == nil || set.Attr("id") != "arch-42" {
		t.Fatalf("reaction set missing or mistargeted: %v", msg)
	}

	peer.Deliver(stanza.New("message",
		"from", "standup@conference.example.com/alice",
		"id", msg.Attr("id"),
	))
	if err := <-result; err != nil {
		t.Fatalf("SendReaction: %v", err)
	}
}

func TestSendTyping(t *testing.T) {
	client, peer := newOnlineClient(t)

	if err := client.SendTyping(context.Background(), testRoom, "Alice Doe", true); err != nil {
		t.Fatalf("SendTyping: %v", err)
	}
	msg := waitSent(t, peer)
	if msg.ChildWithNS("composing", stanza.NSChatStates) == nil {
		t.Fatalf("typing notification missing composing state: %v", msg)
	}

	if err := client.SendTyping(context.Background(), testRoom, "Alice Doe", false); err != nil {
		t.Fatalf("SendTyping: %v", err)
	}
	msg = waitSent(t, peer)
	if msg.ChildWithNS("paused", stanza.NSChatStates) == nil {
		t.Fatalf("typing notification missing paused state: %v", msg)
	}
}

func TestLoadHistory(t *testing.T) {
	client, peer := newOnlineClient(t)

	result := make(chan *HistoryPage, 1)
	go func() {
		page, err := client.LoadHistory(context.Background(), testRoom, 3, "")
		if err != nil {
			t.Errorf("LoadHistory: %v", err)
		}
		result <- page
	}()

	iq := waitSent(t, peer)
	query := iq.ChildWithNS("query", stanza.NSArchive)
	if query == nil {
		t.Fatalf("sent stanza is not an archive query: %v", iq)
	}
	paging := query.ChildWithNS("set", stanza.NSPaging)
	if paging == nil || paging.ChildText("max") != "3" {
		t.Fatalf("paging set missing or wrong max: %v", iq)
	}
	queryID := query.Attr("queryid")

	deliverArchived(peer, queryID, "m1", "bob", "first", "2026-08-30T10:00:00Z")
	deliverArchived(peer, queryID, "m2", "carol", "second", "2026-08-30T10:05:00Z")
	peer.Deliver(stanza.New("iq", "type", "result", "id", iq.Attr("id")).
		AddChild(stanza.New("fin", "xmlns", stanza.NSArchive)))

	page := <-result
	if len(page.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(page.Messages))
	}
	// Two results against a page size of three: nothing older remains.
	if !page.Complete {
		t.Fatal("short page not marked complete")
	}
	first := page.Messages[0]
	if first.ID != "m1" || first.From != "bob" || first.Body != "first" {
		t.Fatalf("unexpected first message: %+v", first)
	}
	if first.RoomJID != testRoom.Bare() {
		t.Fatalf("first message room = %v", first.RoomJID)
	}
	want := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	if !first.Timestamp.Equal(want) {
		t.Fatalf("first message timestamp = %v, want %v", first.Timestamp, want)
	}
}

func TestLoadHistoryFullPage(t *testing.T) {
	client, peer := newOnlineClient(t)

	result := make(chan *HistoryPage, 1)
	go func() {
		page, err := client.LoadHistory(context.Background(), testRoom, 2, "m3")
		if err != nil {
			t.Errorf("LoadHistory: %v", err)
		}
		result <- page
	}()

	iq := waitSent(t, peer)
	query := iq.ChildWithNS("query", stanza.NSArchive)
	paging := query.ChildWithNS("set", stanza.NSPaging)
	if paging.ChildText("before") != "m3" {
		t.Fatalf("before cursor = %q, want m3", paging.ChildText("before"))
	}
	queryID := query.Attr("queryid")

	deliverArchived(peer, queryID, "m1", "bob", "first", "2026-08-30T10:00:00Z")
	deliverArchived(peer, queryID, "m2", "carol", "second", "2026-08-30T10:05:00Z")
	peer.Deliver(stanza.New("iq", "type", "result", "id", iq.Attr("id")).
		AddChild(stanza.New("fin", "xmlns", stanza.NSArchive)))

	page := <-result
	if len(page.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(page.Messages))
	}
	if page.Complete {
		t.Fatal("full page without a complete fin marked complete")
	}
}

func deliverArchived(peer *transport.Peer, queryID, archiveID, nick, body, stamp string) {
	inner := stanza.New("message",
		"from", "standup@conference.example.com/"+nick,
		"type", "groupchat",
	).AddChild(stanza.New("body").SetText(body))
	forwarded := stanza.New("forwarded", "xmlns", stanza.NSForward).AddChild(
		stanza.New("delay", "xmlns", stanza.NSDelay, "stamp", stamp),
		inner,
	)
	peer.Deliver(stanza.New("message", "from", "standup@conference.example.com").
		AddChild(stanza.New("result",
			"xmlns", stanza.NSArchive,
			"queryid", queryID,
			"id", archiveID,
		).AddChild(forwarded)))
}

func TestCreateRoom(t *testing.T) {
	client, peer := newOnlineClient(t)

	result := make(chan ref.JID, 1)
	go func() {
		room, err := client.CreateRoom(context.Background(), "War room", "incidents")
		if err != nil {
			t.Errorf("CreateRoom: %v", err)
		}
		result <- room
	}()

	join := waitSent(t, peer)
	if !join.Is("presence") {
		t.Fatalf("first sent stanza %q, want the creating presence", join.Name)
	}
	peer.Deliver(stanza.New("presence",
		"from", join.Attr("to"),
		"id", join.Attr("id"),
	))

	config := waitSent(t, peer)
	if config.ChildWithNS("query", stanza.NSMUCOwner) == nil {
		t.Fatalf("second sent stanza is not a room configuration: %v", config)
	}
	peer.Deliver(stanza.New("iq", "type", "result", "id", config.Attr("id")))

	room := <-result
	if room.Domain() != "conference.example.com" {
		t.Fatalf("room domain = %q", room.Domain())
	}
	if room.Localpart() == "" {
		t.Fatal("room localpart is empty")
	}
}

func TestRoomMembers(t *testing.T) {
	client, peer := newOnlineClient(t)

	result := make(chan []RoomMember, 1)
	go func() {
		members, err := client.RoomMembers(context.Background(), testRoom)
		if err != nil {
			t.Errorf("RoomMembers: %v", err)
		}
		result <- members
	}()

	query := waitSent(t, peer)
	peer.Deliver(stanza.New("iq", "type", "result", "id", query.Attr("id")).
		AddChild(stanza.New("query", "xmlns", stanza.NSMUCAdmin).AddChild(
			stanza.New("item",
				"jid", "bob@example.com",
				"nick", "bob",
				"affiliation", "member",
				"role", "participant",
			),
			stanza.New("item",
				"jid", "carol@example.com",
				"affiliation", "admin",
			),
		)))

	members := <-result
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2", len(members))
	}
	if members[0].Nick != "bob" || members[0].Affiliation != "member" {
		t.Fatalf("unexpected member: %+v", members[0])
	}
	if members[1].JID.Localpart() != "carol" {
		t.Fatalf("unexpected member: %+v", members[1])
	}
}

func TestInviteAndLeave(t *testing.T) {
	client, peer := newOnlineClient(t)

	invitee := ref.MustParseJID("bob@example.com")
	if err := client.InviteUser(context.Background(), testRoom, invitee); err != nil {
		t.Fatalf("InviteUser: %v", err)
	}
	invite := waitSent(t, peer)
	x := invite.ChildWithNS("x", stanza.NSMUCUser)
	if x == nil || x.Child("invite").Attr("to") != "bob@example.com" {
		t.Fatalf("malformed invite: %v", invite)
	}

	if err := client.LeaveRoom(context.Background(), testRoom); err != nil {
		t.Fatalf("LeaveRoom: %v", err)
	}
	leave := waitSent(t, peer)
	if leave.Attr("type") != "unavailable" {
		t.Fatalf("leave presence type = %q", leave.Attr("type"))
	}
}

func TestParseMessageLive(t *testing.T) {
	el := stanza.New("message",
		"from", "standup@conference.example.com/bob",
		"id", "client-1",
		"type", "groupchat",
	).AddChild(
		stanza.New("body").SetText("hello"),
		stanza.New("stanza-id", "xmlns", stanza.NSStanzaID, "id", "arch-7"),
		stanza.New("data", "xmlns", stanza.NSProfile, "senderFirstName", "Bob"),
	)

	msg, ok := ParseMessage(el)
	if !ok {
		t.Fatal("ParseMessage rejected a live message")
	}
	if msg.ID != "arch-7" {
		t.Fatalf("id = %q, want the archive stamp", msg.ID)
	}
	if msg.From != "bob" || msg.Body != "hello" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.RoomJID != testRoom.Bare() {
		t.Fatalf("room = %v", msg.RoomJID)
	}
	if msg.Profile.FirstName != "Bob" {
		t.Fatalf("profile = %+v", msg.Profile)
	}

	if _, ok := ParseMessage(stanza.New("message", "from", "x@y")); ok {
		t.Fatal("ParseMessage accepted a bodyless stanza")
	}
}
