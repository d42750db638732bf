// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/stanza"
)

// matchIQ matches the iq result or error carrying the given id.
func matchIQ(id string) Predicate {
	return func(el *stanza.Element) bool {
		return el.Is("iq") && el.Attr("id") == id
	}
}

// matchEcho matches the room's reflection of a stanza we sent: same
// element name, our id, and a from inside the room.
func matchEcho(name, id string, room ref.JID) Predicate {
	prefix := room.Bare().String()
	return func(el *stanza.Element) bool {
		return el.Is(name) &&
			el.Attr("id") == id &&
			strings.HasPrefix(el.Attr("from"), prefix)
	}
}

// replyError converts an error reply into a *stanza.Error, or nil for
// a success reply.
func replyError(reply *stanza.Element) error {
	if !stanza.IsError(reply) {
		return nil
	}
	if parsed := stanza.ParseError(reply); parsed != nil {
		return parsed
	}
	return fmt.Errorf("session: error reply without error detail: %s", reply)
}

// PresenceInRoom joins the room (or re-asserts membership) and waits
// for the room's presence echo confirming the occupant is in.
func (c *Client) PresenceInRoom(ctx context.Context, room ref.JID) error {
	id := uuid.NewString()
	join := stanza.NewJoinPresence(c.credentials.JID, room, id)
	reply, err := c.Request(ctx, join, matchEcho("presence", id, room), 0)
	if err != nil {
		return fmt.Errorf("session: joining %s: %w", room.Bare(), err)
	}
	if err := replyError(reply); err != nil {
		return fmt.Errorf("session: joining %s: %w", room.Bare(), err)
	}
	return nil
}

// ListRooms queries the conference service for the rooms it hosts.
func (c *Client) ListRooms(ctx context.Context) ([]RoomDescriptor, error) {
	id := uuid.NewString()
	query := stanza.NewRoomListQuery(id, c.config.ConferenceDomain)
	reply, err := c.Request(ctx, query, matchIQ(id), 0)
	if err != nil {
		return nil, fmt.Errorf("session: listing rooms: %w", err)
	}
	if err := replyError(reply); err != nil {
		return nil, fmt.Errorf("session: listing rooms: %w", err)
	}
	return parseRoomList(reply), nil
}

func parseRoomList(reply *stanza.Element) []RoomDescriptor {
	query := reply.ChildWithNS("query", stanza.NSDiscoItems)
	if query == nil {
		return nil
	}
	var rooms []RoomDescriptor
	for _, item := range query.Children {
		if !item.Is("item") {
			continue
		}
		jid, err := ref.ParseJID(item.Attr("jid"))
		if err != nil {
			continue
		}
		count, _ := strconv.Atoi(item.Attr("users"))
		rooms = append(rooms, RoomDescriptor{
			JID:         jid,
			Name:        jid.Localpart(),
			Title:       item.Attr("name"),
			Kind:        item.Attr("kind"),
			MemberCount: count,
		})
	}
	return rooms
}

// SendMessage posts a groupchat message and waits for the room's echo,
// returning the server-assigned archive id (the sender id when the
// archive did not stamp one).
func (c *Client) SendMessage(ctx context.Context, room ref.JID, opts MessageOptions) (string, error) {
	id := opts.CustomID
	if id == "" {
		id = uuid.NewString()
	}
	msg := stanza.NewMessage(room, id, opts.Body, opts.Profile)
	if opts.ReplyTo != "" {
		msg.AddChild(stanza.New("reply", "xmlns", stanza.NSReply, "id", opts.ReplyTo))
	}
	reply, err := c.Request(ctx, msg, matchEcho("message", id, room), 0)
	if err != nil {
		return "", fmt.Errorf("session: sending message to %s: %w", room.Bare(), err)
	}
	if err := replyError(reply); err != nil {
		return "", fmt.Errorf("session: sending message to %s: %w", room.Bare(), err)
	}
	if stamped := reply.ChildWithNS("stanza-id", stanza.NSStanzaID); stamped != nil {
		if archiveID := stamped.Attr("id"); archiveID != "" {
			return archiveID, nil
		}
	}
	return id, nil
}

// SendReaction replaces this sender's reaction set on the target
// message. An empty set retracts all reactions.
func (c *Client) SendReaction(ctx context.Context, room ref.JID, targetMessageID string, reactions []string) error {
	id := uuid.NewString()
	msg := stanza.NewReaction(room, id, targetMessageID, reactions)
	reply, err := c.Request(ctx, msg, matchEcho("message", id, room), 0)
	if err != nil {
		return fmt.Errorf("session: sending reaction: %w", err)
	}
	if err := replyError(reply); err != nil {
		return fmt.Errorf("session: sending reaction: %w", err)
	}
	return nil
}

// SendTyping sends a chat-state notification. Fire and forget; typing
// signals are not worth a round trip.
func (c *Client) SendTyping(ctx context.Context, room ref.JID, fullName string, composing bool) error {
	return c.send(ctx, stanza.NewTyping(room, uuid.NewString(), fullName, composing))
}

// CreateRoom creates a persistent room with a generated address, joins
// it, and submits its configuration. Returns the new room's JID.
func (c *Client) CreateRoom(ctx context.Context, title, description string) (ref.JID, error) {
	room, err := ref.ParseJID(uuid.NewString() + "@" + c.config.ConferenceDomain)
	if err != nil {
		return ref.JID{}, fmt.Errorf("session: creating room: %w", err)
	}
	if err := c.PresenceInRoom(ctx, room); err != nil {
		return ref.JID{}, fmt.Errorf("session: creating room: %w", err)
	}
	id := uuid.NewString()
	config := stanza.NewRoomConfig(id, room, title, description)
	reply, err := c.Request(ctx, config, matchIQ(id), 0)
	if err != nil {
		return ref.JID{}, fmt.Errorf("session: configuring room %s: %w", room, err)
	}
	if err := replyError(reply); err != nil {
		return ref.JID{}, fmt.Errorf("session: configuring room %s: %w", room, err)
	}
	return room, nil
}

// InviteUser sends a mediated invitation through the room.
func (c *Client) InviteUser(ctx context.Context, room, invitee ref.JID) error {
	return c.send(ctx, stanza.NewInvite(uuid.NewString(), room, invitee))
}

// LeaveRoom drops this occupant from the room.
func (c *Client) LeaveRoom(ctx context.Context, room ref.JID) error {
	return c.send(ctx, stanza.NewLeavePresence(c.credentials.JID, room, uuid.NewString()))
}

// RoomMembers lists the room's member affiliations.
func (c *Client) RoomMembers(ctx context.Context, room ref.JID) ([]RoomMember, error) {
	id := uuid.NewString()
	query := stanza.NewMemberListQuery(id, room)
	reply, err := c.Request(ctx, query, matchIQ(id), 0)
	if err != nil {
		return nil, fmt.Errorf("session: listing members of %s: %w", room.Bare(), err)
	}
	if err := replyError(reply); err != nil {
		return nil, fmt.Errorf("session: listing members of %s: %w", room.Bare(), err)
	}
	return parseMemberList(reply), nil
}

func parseMemberList(reply *stanza.Element) []RoomMember {
	query := reply.ChildWithNS("query", stanza.NSMUCAdmin)
	if query == nil {
		return nil
	}
	var members []RoomMember
	for _, item := range query.Children {
		if !item.Is("item") {
			continue
		}
		member := RoomMember{
			Nick:        item.Attr("nick"),
			Affiliation: item.Attr("affiliation"),
			Role:        item.Attr("role"),
		}
		if jid, err := ref.ParseJID(item.Attr("jid")); err == nil {
			member.JID = jid
		}
		members = append(members, member)
	}
	return members
}
