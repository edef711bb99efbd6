// Copyright 2026 The Runmux Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Kind classifies a decoded protocol message.
type Kind string

const (
	// KindResponse is a reply to an outbound command, correlated by ID.
	KindResponse Kind = "response"

	// KindEvent is an unsolicited notification from the daemon.
	KindEvent Kind = "event"
)

// Message is the decoded inner payload of a protocol line. Exactly one
// of Response or Event is set, indicated by Kind.
type Message struct {
	// Kind indicates which variant is populated.
	Kind Kind

	// Response is set for KindResponse messages.
	Response *Response

	// Event is set for KindEvent messages.
	Event *Event
}

// Response is a reply to an outbound command. At most one of Result
// and Error is populated; the daemon never sends both.
type Response struct {
	// ID is the correlation identifier echoed from the command,
	// canonicalized to a string. Numeric IDs render without an
	// exponent ("17", not "1.7e1"), string IDs pass through.
	ID string

	// Result is the success payload as raw JSON, or nil.
	Result json.RawMessage

	// Error is the daemon-reported error payload as raw JSON, or nil.
	Error json.RawMessage
}

// Event is an unsolicited daemon notification.
type Event struct {
	// Name is the namespaced event name (e.g., "app.started").
	Name string

	// Params is the event payload as raw JSON. May be nil for events
	// carried without parameters.
	Params json.RawMessage
}

// StripEnvelope extracts the inner payload from a protocol line. After
// trimming surrounding whitespace, the line must begin with "[" and end
// with "]"; the text between the brackets is returned verbatim. The
// second return value is false for any line lacking the bracket pair —
// such lines are the daemon's free-form console output.
//
// StripEnvelope does not validate that the inner text is JSON.
func StripEnvelope(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < 2 || trimmed[0] != '[' || trimmed[len(trimmed)-1] != ']' {
		return "", false
	}
	return trimmed[1 : len(trimmed)-1], true
}

// ParseMessage decodes an envelope-stripped payload into a Message.
// Classification is structural: an "id" field makes it a Response, an
// "event" field (with no "id") makes it an Event. The second return
// value is false for malformed JSON or a shape matching neither
// variant. ParseMessage never panics on arbitrary input.
func ParseMessage(inner string) (Message, bool) {
	decoder := json.NewDecoder(strings.NewReader(inner))
	decoder.UseNumber()

	var wire struct {
		ID     any             `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  json.RawMessage `json:"error"`
		Event  *string         `json:"event"`
		Params json.RawMessage `json:"params"`
	}
	if err := decoder.Decode(&wire); err != nil {
		return Message{}, false
	}
	// The payload must be exactly one JSON value. Trailing text means
	// the line was console noise that happened to start with a valid
	// object, not a protocol message.
	if decoder.Decode(new(json.RawMessage)) != io.EOF {
		return Message{}, false
	}

	if wire.ID != nil {
		id, ok := canonicalID(wire.ID)
		if !ok {
			return Message{}, false
		}
		return Message{
			Kind: KindResponse,
			Response: &Response{
				ID:     id,
				Result: nullToNil(wire.Result),
				Error:  nullToNil(wire.Error),
			},
		}, true
	}

	if wire.Event != nil {
		return Message{
			Kind: KindEvent,
			Event: &Event{
				Name:   *wire.Event,
				Params: nullToNil(wire.Params),
			},
		}, true
	}

	return Message{}, false
}

// canonicalID renders a wire "id" value as a string map key. The
// protocol permits number or string IDs; anything else is malformed.
func canonicalID(value any) (string, bool) {
	switch id := value.(type) {
	case json.Number:
		return id.String(), true
	case string:
		return id, true
	default:
		return "", false
	}
}

// nullToNil normalizes an explicit JSON null to a nil RawMessage so
// callers can distinguish "absent or null" from "present" with one
// nil check.
func nullToNil(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	return raw
}

// Command is an outbound method invocation.
type Command struct {
	// Method is the namespaced method name (e.g., "app.restart").
	Method string `json:"method"`

	// ID is the correlation identifier. The matching Response echoes
	// it back.
	ID int64 `json:"id"`

	// Params carries method-specific arguments. Omitted from the wire
	// when nil.
	Params any `json:"params,omitempty"`
}

// MarshalCommand serializes a command inside the outer envelope,
// producing the exact text to write as one line on the daemon's stdin
// (terminator not included).
func MarshalCommand(command Command) (string, error) {
	payload, err := json.Marshal(command)
	if err != nil {
		return "", fmt.Errorf("marshaling %s command: %w", command.Method, err)
	}
	return "[" + string(payload) + "]", nil
}
