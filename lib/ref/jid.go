// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// JID is a validated identifier on the stanza protocol
// (e.g., "alice@example.com" or "standup@conference.example.com/alice").
//
// A JID has up to three parts: localpart@domain/resource. The localpart
// and domain are required; the resource is optional and names one
// specific connected client (for users) or one occupant (for rooms).
//
// JID is an immutable value type. The zero value is not valid; use
// IsZero to check.
type JID struct {
	raw      string
	atIndex  int // index of '@' in raw
	slashIdx int // index of '/' in raw, or -1
}

// ParseJID validates and wraps a raw JID string. Returns an error if
// the string is empty, has no '@', or has an empty localpart, domain,
// or resource part.
func ParseJID(raw string) (JID, error) {
	if raw == "" {
		return JID{}, fmt.Errorf("empty JID")
	}

	atIndex := strings.IndexByte(raw, '@')
	if atIndex < 0 {
		return JID{}, fmt.Errorf("JID missing '@domain' part: %q", raw)
	}
	if atIndex == 0 {
		return JID{}, fmt.Errorf("JID has empty localpart: %q", raw)
	}

	rest := raw[atIndex+1:]
	slashIdx := strings.IndexByte(rest, '/')
	domain := rest
	if slashIdx >= 0 {
		domain = rest[:slashIdx]
		if rest[slashIdx+1:] == "" {
			return JID{}, fmt.Errorf("JID has empty resource: %q", raw)
		}
		slashIdx += atIndex + 1
	}
	if domain == "" {
		return JID{}, fmt.Errorf("JID has empty domain: %q", raw)
	}
	if strings.ContainsAny(domain, " \t") {
		return JID{}, fmt.Errorf("JID domain contains whitespace: %q", raw)
	}

	return JID{raw: raw, atIndex: atIndex, slashIdx: slashIdx}, nil
}

// MustParseJID is ParseJID that panics on error. For tests and
// compile-time-constant identifiers only.
func MustParseJID(raw string) JID {
	jid, err := ParseJID(raw)
	if err != nil {
		panic(err)
	}
	return jid
}

// String returns the full JID string, including the resource if present.
func (j JID) String() string { return j.raw }

// IsZero reports whether the JID is the zero value (uninitialized).
func (j JID) IsZero() bool { return j.raw == "" }

// Localpart returns the part before the '@'.
func (j JID) Localpart() string {
	if j.raw == "" {
		panic("JID.Localpart called on zero value")
	}
	return j.raw[:j.atIndex]
}

// Domain returns the part between the '@' and the '/' (or the end).
func (j JID) Domain() string {
	if j.raw == "" {
		panic("JID.Domain called on zero value")
	}
	if j.slashIdx < 0 {
		return j.raw[j.atIndex+1:]
	}
	return j.raw[j.atIndex+1 : j.slashIdx]
}

// Resource returns the part after the '/', or "" if the JID is bare.
func (j JID) Resource() string {
	if j.raw == "" {
		panic("JID.Resource called on zero value")
	}
	if j.slashIdx < 0 {
		return ""
	}
	return j.raw[j.slashIdx+1:]
}

// Bare returns the JID without its resource part. A bare JID is
// returned unchanged.
func (j JID) Bare() JID {
	if j.slashIdx < 0 {
		return j
	}
	return JID{raw: j.raw[:j.slashIdx], atIndex: j.atIndex, slashIdx: -1}
}

// WithResource returns a copy of the bare form of j with the given
// resource attached.
func (j JID) WithResource(resource string) (JID, error) {
	return ParseJID(j.Bare().String() + "/" + resource)
}

// SameLocalpart reports whether two identifier strings name the same
// entity, comparing localparts only. Each input may be a full JID, a
// bare JID, or a naked localpart; everything after the first '@' is
// ignored and surrounding whitespace is trimmed. Room directories
// return naked room names while deep links carry full conference JIDs,
// so this is the comparison used for room discovery.
func SameLocalpart(a, b string) bool {
	return trimToLocalpart(a) != "" && trimToLocalpart(a) == trimToLocalpart(b)
}

func trimToLocalpart(s string) string {
	if atIndex := strings.IndexByte(s, '@'); atIndex >= 0 {
		s = s[:atIndex]
	}
	return strings.TrimSpace(s)
}
