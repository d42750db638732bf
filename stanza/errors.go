// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package stanza

import (
	"errors"
	"fmt"
)

// Error represents a protocol-level error stanza. Callers use
// errors.As to extract the structured information:
//
//	var stanzaErr *stanza.Error
//	if errors.As(err, &stanzaErr) {
//	    if stanzaErr.Condition == stanza.CondItemNotFound { ... }
//	}
type Error struct {
	// Condition is the defined condition element name
	// (e.g., "item-not-found", "forbidden").
	Condition string
	// Type is the error type attribute ("cancel", "auth", "modify",
	// "wait").
	Type string
	// Code is the legacy numeric code attribute, "" when absent.
	Code string
	// Text is the optional human-readable description.
	Text string
}

func (e *Error) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("stanza: %s (%s)", e.Condition, e.Type)
	}
	return fmt.Sprintf("stanza: %s (%s): %s", e.Condition, e.Type, e.Text)
}

// Defined error conditions this module reacts to.
const (
	CondItemNotFound       = "item-not-found"
	CondNotAuthorized      = "not-authorized"
	CondForbidden          = "forbidden"
	CondConflict           = "conflict"
	CondServiceUnavailable = "service-unavailable"
	CondNotAcceptable      = "not-acceptable"
)

// IsError reports whether the stanza carries type="error".
func IsError(el *Element) bool {
	return el.Attr("type") == "error"
}

// ParseError extracts the structured error from an error stanza.
// Returns nil if the stanza has no <error> child.
func ParseError(el *Element) *Error {
	errorChild := el.Child("error")
	if errorChild == nil {
		return nil
	}

	parsed := &Error{
		Type: errorChild.Attr("type"),
		Code: errorChild.Attr("code"),
		Text: errorChild.ChildText("text"),
	}
	// The defined condition is the first child that isn't the
	// descriptive text element.
	for _, child := range errorChild.Children {
		if child.Name != "text" {
			parsed.Condition = child.Name
			break
		}
	}
	return parsed
}

// IsCondition checks whether err is a *Error with the given defined
// condition.
func IsCondition(err error, condition string) bool {
	var stanzaErr *Error
	if errors.As(err, &stanzaErr) {
		return stanzaErr.Condition == condition
	}
	return false
}
