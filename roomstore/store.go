// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package roomstore holds the in-memory room collection: the rooms the
// account can see, their loaded message windows, and the flags the
// history loader schedules from. The session layer feeds it inbound
// stanzas and history pages; the loader and UI read snapshots and
// subscribe to change events. All methods are safe for concurrent use.
package roomstore

import (
	"sort"
	"sync"

	"github.com/parley-chat/parley/loader"
	"github.com/parley-chat/parley/session"
)

// Message is a chat message with its accumulated reactions.
type Message struct {
	session.Message

	// Reactions maps a reaction string to the occupants who set it.
	Reactions map[string][]string
}

// Room is one tracked room and its loaded message window. Messages
// are in chronological order.
type Room struct {
	Descriptor session.RoomDescriptor
	Messages   []Message

	// NoMessages marks a room whose archive came back empty.
	NoMessages bool
	// HistoryComplete marks a room with nothing older left to fetch.
	HistoryComplete bool
	// Loading marks an in-flight history fetch.
	Loading bool
	// Composing lists occupants currently typing.
	Composing []string
}

// Event describes one store mutation.
type Event struct {
	Kind   EventKind
	RoomID string
}

type EventKind int

const (
	// EventRooms: the tracked room set changed.
	EventRooms EventKind = iota
	// EventMessages: a room's message window or reactions changed.
	EventMessages
	// EventLoading: a loading flag changed.
	EventLoading
	// EventComposing: a room's typing set changed.
	EventComposing
)

// Store is the mutable room collection.
type Store struct {
	mu          sync.Mutex
	rooms       map[string]*Room
	order       []string
	loading     bool
	subscribers []func(Event)
}

func New() *Store {
	return &Store{rooms: make(map[string]*Room)}
}

// Subscribe registers f for every store mutation. Callbacks run
// synchronously after the mutation and must not call back into the
// Store.
func (s *Store) Subscribe(f func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, f)
}

func (s *Store) notifyLocked(event Event) func() {
	subscribers := make([]func(Event), len(s.subscribers))
	copy(subscribers, s.subscribers)
	return func() {
		for _, f := range subscribers {
			f(event)
		}
	}
}

// roomLocked returns the tracked room, creating it when new. The
// second result reports creation.
func (s *Store) roomLocked(id string) (*Room, bool) {
	if room, ok := s.rooms[id]; ok {
		return room, false
	}
	room := &Room{}
	s.rooms[id] = room
	s.order = append(s.order, id)
	return room, true
}

// ApplyDescriptors merges a directory listing into the store. Known
// rooms keep their messages and flags; rooms missing from the listing
// are kept, since directory listings are not authoritative between
// discovery rounds.
func (s *Store) ApplyDescriptors(descriptors []session.RoomDescriptor) {
	s.mu.Lock()
	changed := false
	for _, descriptor := range descriptors {
		if descriptor.JID.IsZero() {
			continue
		}
		room, created := s.roomLocked(descriptor.JID.Bare().String())
		room.Descriptor = descriptor
		changed = changed || created
	}
	notify := s.notifyLocked(Event{Kind: EventRooms})
	s.mu.Unlock()
	if changed {
		notify()
	}
}

// Upsert tracks a single room, preserving state if already present.
func (s *Store) Upsert(descriptor session.RoomDescriptor) {
	s.ApplyDescriptors([]session.RoomDescriptor{descriptor})
}

// PrependHistory merges one older-history page into the room. An
// empty page marks the room accordingly: NoMessages when nothing is
// loaded at all, HistoryComplete always. Messages already present are
// skipped.
func (s *Store) PrependHistory(roomID string, page *session.HistoryPage) {
	s.mu.Lock()
	room, _ := s.roomLocked(roomID)

	fresh := make([]Message, 0, len(page.Messages))
	for _, msg := range page.Messages {
		if !s.hasMessageLocked(room, msg.ID) {
			fresh = append(fresh, Message{Message: msg})
		}
	}
	room.Messages = append(fresh, room.Messages...)

	if page.Complete {
		room.HistoryComplete = true
	}
	if len(page.Messages) == 0 && len(room.Messages) == 0 {
		room.NoMessages = true
	}
	notify := s.notifyLocked(Event{Kind: EventMessages, RoomID: roomID})
	s.mu.Unlock()
	notify()
}

// AppendLive appends a freshly received message, tracking its room if
// needed. Duplicate ids (the sender's own echo racing the archive) are
// dropped.
func (s *Store) AppendLive(msg session.Message) {
	roomID := msg.RoomJID.Bare().String()
	s.mu.Lock()
	room, _ := s.roomLocked(roomID)
	if s.hasMessageLocked(room, msg.ID) {
		s.mu.Unlock()
		return
	}
	room.Messages = append(room.Messages, Message{Message: msg})
	room.NoMessages = false
	notify := s.notifyLocked(Event{Kind: EventMessages, RoomID: roomID})
	s.mu.Unlock()
	notify()
}

func (s *Store) hasMessageLocked(room *Room, id string) bool {
	if id == "" {
		return false
	}
	for _, existing := range room.Messages {
		if existing.ID == id {
			return true
		}
	}
	return false
}

// ApplyReaction replaces sender's reaction set on the target message.
func (s *Store) ApplyReaction(roomID, targetID, sender string, reactions []string) {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		return
	}
	for i := range room.Messages {
		msg := &room.Messages[i]
		if msg.ID != targetID {
			continue
		}
		if msg.Reactions == nil {
			msg.Reactions = make(map[string][]string)
		}
		for reaction, senders := range msg.Reactions {
			msg.Reactions[reaction] = removeString(senders, sender)
			if len(msg.Reactions[reaction]) == 0 {
				delete(msg.Reactions, reaction)
			}
		}
		for _, reaction := range reactions {
			msg.Reactions[reaction] = append(msg.Reactions[reaction], sender)
		}
		break
	}
	notify := s.notifyLocked(Event{Kind: EventMessages, RoomID: roomID})
	s.mu.Unlock()
	notify()
}

func removeString(list []string, value string) []string {
	out := list[:0]
	for _, entry := range list {
		if entry != value {
			out = append(out, entry)
		}
	}
	return out
}

// SetComposing records whether an occupant is typing in the room.
func (s *Store) SetComposing(roomID, name string, composing bool) {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		return
	}
	room.Composing = removeString(room.Composing, name)
	if composing {
		room.Composing = append(room.Composing, name)
	}
	notify := s.notifyLocked(Event{Kind: EventComposing, RoomID: roomID})
	s.mu.Unlock()
	notify()
}

// SetLoading flags an in-flight history fetch for the room.
func (s *Store) SetLoading(roomID string, loading bool) {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		return
	}
	room.Loading = loading
	notify := s.notifyLocked(Event{Kind: EventLoading, RoomID: roomID})
	s.mu.Unlock()
	notify()
}

// SetGlobalLoading flags a store-wide load (initial sync).
func (s *Store) SetGlobalLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	notify := s.notifyLocked(Event{Kind: EventLoading})
	s.mu.Unlock()
	notify()
}

// Snapshot returns a deep copy of one room.
func (s *Store) Snapshot(roomID string) (Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return Room{}, false
	}
	return copyRoom(room), true
}

// Rooms returns deep copies of every tracked room, sorted by title
// with untitled rooms last.
func (s *Store) Rooms() []Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Room, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, copyRoom(s.rooms[id]))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Descriptor.Title, out[j].Descriptor.Title
		if (a == "") != (b == "") {
			return a != ""
		}
		return a < b
	})
	return out
}

func copyRoom(room *Room) Room {
	out := *room
	out.Messages = make([]Message, len(room.Messages))
	copy(out.Messages, room.Messages)
	out.Composing = append([]string(nil), room.Composing...)
	return out
}

// RoomIDs implements loader.Source.
func (s *Store) RoomIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Room implements loader.Source.
func (s *Store) Room(id string) (loader.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return loader.Snapshot{}, false
	}
	return loader.Snapshot{
		MessageCount:    len(room.Messages),
		NoMessages:      room.NoMessages,
		HistoryComplete: room.HistoryComplete,
		Loading:         room.Loading,
	}, true
}

// Loading implements loader.Source.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}
