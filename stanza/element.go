// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package stanza

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Attr is one attribute on an Element. Attribute order is preserved so
// encoding is deterministic.
type Attr struct {
	Key   string
	Value string
}

// Element is one node of a stanza tree.
type Element struct {
	// Name is the element's local name ("message", "presence", "iq",
	// "body", ...). Namespace prefixes are not modeled separately;
	// namespaced names keep their literal "prefix:local" form and
	// default namespaces travel as ordinary xmlns attributes.
	Name string

	Attrs    []Attr
	Children []*Element

	// Text is the element's character data. Mixed content (text
	// interleaved with children) is not modeled; the protocol never
	// produces it.
	Text string
}

// New constructs an Element with the given name and attributes listed
// as alternating key, value pairs. Panics on an odd number of pairs —
// that is a programming error at a call site, not runtime input.
func New(name string, pairs ...string) *Element {
	if len(pairs)%2 != 0 {
		panic(fmt.Sprintf("stanza: New(%q) called with odd attribute pairs", name))
	}
	element := &Element{Name: name}
	for i := 0; i < len(pairs); i += 2 {
		element.Attrs = append(element.Attrs, Attr{Key: pairs[i], Value: pairs[i+1]})
	}
	return element
}

// Is reports whether the element has the given name.
func (e *Element) Is(name string) bool { return e != nil && e.Name == name }

// Attr returns the value of the named attribute, or "" if absent.
func (e *Element) Attr(key string) string {
	if e == nil {
		return ""
	}
	for _, attr := range e.Attrs {
		if attr.Key == key {
			return attr.Value
		}
	}
	return ""
}

// SetAttr sets or replaces the named attribute and returns the element
// for chaining.
func (e *Element) SetAttr(key, value string) *Element {
	for i, attr := range e.Attrs {
		if attr.Key == key {
			e.Attrs[i].Value = value
			return e
		}
	}
	e.Attrs = append(e.Attrs, Attr{Key: key, Value: value})
	return e
}

// Child returns the first child with the given name, or nil.
func (e *Element) Child(name string) *Element {
	if e == nil {
		return nil
	}
	for _, child := range e.Children {
		if child.Name == name {
			return child
		}
	}
	return nil
}

// ChildWithNS returns the first child with the given name whose xmlns
// attribute equals ns, or nil.
func (e *Element) ChildWithNS(name, ns string) *Element {
	if e == nil {
		return nil
	}
	for _, child := range e.Children {
		if child.Name == name && child.Attr("xmlns") == ns {
			return child
		}
	}
	return nil
}

// ChildText returns the text of the first child with the given name,
// or "" if the child is absent.
func (e *Element) ChildText(name string) string {
	return e.Child(name).text()
}

func (e *Element) text() string {
	if e == nil {
		return ""
	}
	return e.Text
}

// AddChild appends children and returns the element for chaining.
func (e *Element) AddChild(children ...*Element) *Element {
	e.Children = append(e.Children, children...)
	return e
}

// SetText sets the element's character data and returns the element
// for chaining.
func (e *Element) SetText(text string) *Element {
	e.Text = text
	return e
}

// Marshal encodes the element tree as XML.
func Marshal(e *Element) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := xml.NewEncoder(&buffer)
	if err := e.encode(encoder); err != nil {
		return nil, fmt.Errorf("stanza: encoding <%s>: %w", e.Name, err)
	}
	if err := encoder.Flush(); err != nil {
		return nil, fmt.Errorf("stanza: encoding <%s>: %w", e.Name, err)
	}
	return buffer.Bytes(), nil
}

func (e *Element) encode(encoder *xml.Encoder) error {
	start := xml.StartElement{Name: xml.Name{Local: e.Name}}
	for _, attr := range e.Attrs {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: attr.Key}, Value: attr.Value})
	}
	if err := encoder.EncodeToken(start); err != nil {
		return err
	}
	if e.Text != "" {
		if err := encoder.EncodeToken(xml.CharData(e.Text)); err != nil {
			return err
		}
	}
	for _, child := range e.Children {
		if err := child.encode(encoder); err != nil {
			return err
		}
	}
	return encoder.EncodeToken(start.End())
}

// String returns the element tree as XML, or a diagnostic placeholder
// if encoding fails (it cannot for trees built by this package).
func (e *Element) String() string {
	encoded, err := Marshal(e)
	if err != nil {
		return fmt.Sprintf("<%s ?>", e.Name)
	}
	return string(encoded)
}

// Unmarshal parses one XML element tree from data. Trailing content
// after the first top-level element is rejected.
func Unmarshal(data []byte) (*Element, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	element, err := decodeElement(decoder)
	if err != nil {
		return nil, err
	}
	// Anything but EOF after the tree means two stanzas were glued
	// into one frame, which the transport never produces.
	if _, err := decoder.Token(); err != io.EOF {
		return nil, fmt.Errorf("stanza: trailing content after </%s>", element.Name)
	}
	return element, nil
}

// decodeElement reads tokens up to and including the first start
// element, then builds its subtree.
func decodeElement(decoder *xml.Decoder) (*Element, error) {
	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("stanza: parsing: %w", err)
		}
		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}
		return decodeSubtree(decoder, start)
	}
}

func decodeSubtree(decoder *xml.Decoder, start xml.StartElement) (*Element, error) {
	element := &Element{Name: start.Name.Local}
	for _, attr := range start.Attr {
		element.Attrs = append(element.Attrs, Attr{Key: attrKey(attr.Name), Value: attr.Value})
	}

	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("stanza: parsing <%s>: %w", element.Name, err)
		}
		switch typed := token.(type) {
		case xml.StartElement:
			child, err := decodeSubtree(decoder, typed)
			if err != nil {
				return nil, err
			}
			element.Children = append(element.Children, child)
		case xml.CharData:
			if text := strings.TrimSpace(string(typed)); text != "" {
				element.Text += text
			}
		case xml.EndElement:
			return element, nil
		}
	}
}

// attrKey restores the literal attribute name the decoder split into
// namespace and local parts. Default namespace declarations come back
// with an empty or "xmlns" space.
func attrKey(name xml.Name) string {
	switch name.Space {
	case "":
		return name.Local
	case "xmlns":
		return "xmlns:" + name.Local
	default:
		return name.Space + ":" + name.Local
	}
}
