// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/parley-chat/parley/lib/ref"
	"github.com/parley-chat/parley/stanza"
)

// historyCollector accumulates the archive result messages for one
// in-flight query. The archive streams results first and the closing
// iq last on the same ordered connection, so every result is collected
// before the query's Request resolves.
type historyCollector struct {
	room     ref.JID
	messages []Message
}

// LoadHistory fetches one page of up to max archived messages from the
// room, ending just before the message with id beforeID. An empty
// beforeID fetches the newest page. Pages come back oldest first.
func (c *Client) LoadHistory(ctx context.Context, room ref.JID, max int, beforeID string) (*HistoryPage, error) {
	if max <= 0 {
		max = 10
	}
	id := uuid.NewString()
	collector := &historyCollector{room: room}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.collectors[id] = collector
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.collectors, id)
		c.mu.Unlock()
	}()

	query := stanza.NewHistoryQuery(id, room, max, beforeID)
	reply, err := c.Request(ctx, query, matchIQ(id), 0)
	if err != nil {
		return nil, fmt.Errorf("session: loading history of %s: %w", room.Bare(), err)
	}
	if err := replyError(reply); err != nil {
		return nil, fmt.Errorf("session: loading history of %s: %w", room.Bare(), err)
	}

	c.mu.Lock()
	messages := collector.messages
	c.mu.Unlock()

	complete := len(messages) < max
	if fin := reply.ChildWithNS("fin", stanza.NSArchive); fin != nil && fin.Attr("complete") == "true" {
		complete = true
	}
	return &HistoryPage{Messages: messages, Complete: complete}, nil
}

// collectHistory intercepts archive result messages addressed to an
// in-flight history query. Reports whether el was consumed.
func (c *Client) collectHistory(el *stanza.Element) bool {
	if !el.Is("message") {
		return false
	}
	result := el.ChildWithNS("result", stanza.NSArchive)
	if result == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	collector, ok := c.collectors[result.Attr("queryid")]
	if !ok {
		// A result for a query that already settled; drop it.
		return true
	}
	if msg, ok := parseArchived(collector.room, result); ok {
		collector.messages = append(collector.messages, msg)
	}
	return true
}

// parseArchived unwraps one archive result into a Message.
func parseArchived(room ref.JID, result *stanza.Element) (Message, bool) {
	forwarded := result.ChildWithNS("forwarded", stanza.NSForward)
	if forwarded == nil {
		return Message{}, false
	}
	inner := forwarded.Child("message")
	if inner == nil {
		return Message{}, false
	}
	msg, ok := ParseMessage(inner)
	if !ok {
		return Message{}, false
	}
	msg.RoomJID = room.Bare()
	if archiveID := result.Attr("id"); archiveID != "" {
		msg.ID = archiveID
	}
	if delay := forwarded.ChildWithNS("delay", stanza.NSDelay); delay != nil {
		if stamp, err := time.Parse(time.RFC3339, delay.Attr("stamp")); err == nil {
			msg.Timestamp = stamp
		}
	}
	return msg, true
}

// ParseMessage extracts a chat message from a groupchat message
// stanza. Returns false for stanzas without a body (chat states,
// reactions, errors).
func ParseMessage(el *stanza.Element) (Message, bool) {
	if !el.Is("message") {
		return Message{}, false
	}
	body := el.ChildText("body")
	if body == "" {
		return Message{}, false
	}
	msg := Message{
		ID:      el.Attr("id"),
		Body:    body,
		Profile: stanza.ParseProfile(el),
	}
	if stamped := el.ChildWithNS("stanza-id", stanza.NSStanzaID); stamped != nil {
		if archiveID := stamped.Attr("id"); archiveID != "" {
			msg.ID = archiveID
		}
	}
	if linked := el.ChildWithNS("reply", stanza.NSReply); linked != nil {
		msg.ReplyTo = linked.Attr("id")
	}
	if from, err := ref.ParseJID(el.Attr("from")); err == nil {
		msg.RoomJID = from.Bare()
		msg.From = from.Resource()
	}
	return msg, true
}
