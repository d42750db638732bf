// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package stanza

import (
	"strings"
	"testing"
)

func TestMarshalUnmarshal(t *testing.T) {
	original := New("message", "to", "standup@conference.example.com", "type", "groupchat", "id", "m1").
		AddChild(
			New("body").SetText("hello & <world>"),
			New("data", "xmlns", NSProfile, "senderFirstName", "Alice"),
		)

	encoded, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	decoded, err := Unmarshal(encoded)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if !decoded.Is("message") {
		t.Fatalf("decoded name = %q", decoded.Name)
	}
	if decoded.Attr("to") != "standup@conference.example.com" {
		t.Errorf("to = %q", decoded.Attr("to"))
	}
	if decoded.ChildText("body") != "hello & <world>" {
		t.Errorf("body = %q, escaping broken", decoded.ChildText("body"))
	}
	data := decoded.ChildWithNS("data", NSProfile)
	if data == nil {
		t.Fatal("data child with profile namespace not found")
	}
	if data.Attr("senderFirstName") != "Alice" {
		t.Errorf("senderFirstName = %q", data.Attr("senderFirstName"))
	}
}

func TestUnmarshalRejectsTrailingContent(t *testing.T) {
	_, err := Unmarshal([]byte("<presence/><presence/>"))
	if err == nil {
		t.Fatal("two glued stanzas accepted")
	}
}

func TestUnmarshalNested(t *testing.T) {
	raw := `<iq type="result" id="q1" from="standup@conference.example.com">
		<fin xmlns="urn:xmpp:mam:2" complete="true">
			<set xmlns="http://jabber.org/protocol/rsm"><first>100</first><last>110</last></set>
		</fin>
	</iq>`
	decoded, err := Unmarshal([]byte(raw))
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	fin := decoded.ChildWithNS("fin", NSArchive)
	if fin == nil {
		t.Fatal("fin child not found")
	}
	if fin.Attr("complete") != "true" {
		t.Errorf("complete = %q", fin.Attr("complete"))
	}
	set := fin.Child("set")
	if set.ChildText("last") != "110" {
		t.Errorf("last = %q", set.ChildText("last"))
	}
}

func TestSetAttrReplaces(t *testing.T) {
	element := New("presence", "id", "a")
	element.SetAttr("id", "b")
	if element.Attr("id") != "b" {
		t.Errorf("id = %q after SetAttr", element.Attr("id"))
	}
	if len(element.Attrs) != 1 {
		t.Errorf("attr count = %d, want 1", len(element.Attrs))
	}
}

func TestNilSafety(t *testing.T) {
	var nilElement *Element
	if nilElement.Is("message") {
		t.Error("nil Is = true")
	}
	if nilElement.Attr("id") != "" {
		t.Error("nil Attr non-empty")
	}
	if nilElement.Child("body") != nil {
		t.Error("nil Child non-nil")
	}
	if nilElement.ChildText("body") != "" {
		t.Error("nil ChildText non-empty")
	}
}

func TestParseError(t *testing.T) {
	raw := `<presence type="error" from="room@conference.example.com" id="join1">
		<error type="auth" code="407">
			<registration-required xmlns="urn:ietf:params:xml:ns:xmpp-stanzas"/>
			<text>membership required</text>
		</error>
	</presence>`
	decoded, err := Unmarshal([]byte(raw))
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !IsError(decoded) {
		t.Fatal("IsError = false for error stanza")
	}
	parsed := ParseError(decoded)
	if parsed == nil {
		t.Fatal("ParseError returned nil")
	}
	if parsed.Condition != "registration-required" {
		t.Errorf("Condition = %q", parsed.Condition)
	}
	if parsed.Type != "auth" || parsed.Code != "407" {
		t.Errorf("Type/Code = %q/%q", parsed.Type, parsed.Code)
	}
	if parsed.Text != "membership required" {
		t.Errorf("Text = %q", parsed.Text)
	}
	if !IsCondition(parsed, "registration-required") {
		t.Error("IsCondition = false")
	}
	if IsCondition(parsed, CondItemNotFound) {
		t.Error("IsCondition matched wrong condition")
	}
	if !strings.Contains(parsed.Error(), "membership required") {
		t.Errorf("Error() = %q", parsed.Error())
	}
}

func TestParseErrorNoErrorChild(t *testing.T) {
	if ParseError(New("presence")) != nil {
		t.Error("ParseError on clean stanza returned non-nil")
	}
}
