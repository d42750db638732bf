// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable identifier references
// for chat entities. A JID ("jabber identifier") names a user or a room
// on the stanza protocol: localpart@domain, optionally carrying a
// /resource suffix that names one specific connected device or room
// occupant.
//
// All constructors validate their inputs and return errors for invalid
// identifiers. Once constructed, a JID is immutable — accessor methods
// return slices of the original string at zero allocation cost.
//
// Room identifiers are plain JIDs whose domain is the conference
// service (e.g., "standup@conference.example.com"). Server-side room
// directories are not always consistent about which form they return,
// so comparisons between a configured room key and a listed entry go
// through SameLocalpart, which compares the localpart only after
// trimming whitespace.
package ref
