// Package agent is the client for the remote agent service: an outbound
// streaming HTTP call plus the types for the events it emits.
package agent

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Event is one decoded payload from the agent's SSE stream. Exactly one of
// the concrete types below is returned per record, discriminated by the
// payload's "type" field.
type Event interface {
	eventKind() string
}

// MessageEvent carries the authoritative assistant answer. The agent may send
// several as it refines the answer; later ones supersede earlier ones.
type MessageEvent struct {
	Content string
}

// ErrorEvent reports an upstream failure for one record. The stream continues.
type ErrorEvent struct {
	Content string
}

// ReasoningEvent is intermediate chain-of-thought output. Never forwarded.
type ReasoningEvent struct {
	Content string
}

// ToolEvent describes a tool invocation made by the agent. Never forwarded.
type ToolEvent struct {
	Name   string
	Input  json.RawMessage
	Output json.RawMessage
}

// TokenEvent is a bare string payload, an incremental token.
type TokenEvent struct {
	Token string
}

func (MessageEvent) eventKind() string   { return "message" }
func (ErrorEvent) eventKind() string     { return "error" }
func (ReasoningEvent) eventKind() string { return "reasoning" }
func (ToolEvent) eventKind() string      { return "tool" }
func (TokenEvent) eventKind() string     { return "token" }

type rawEvent struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
	Name    string          `json:"name"`
	Input   json.RawMessage `json:"input"`
	Output  json.RawMessage `json:"output"`
}

// nestedContent matches the message payload shape {"content":{"content": "..."}}.
type nestedContent struct {
	Content string `json:"content"`
}

// ParseEvent decodes one SSE data payload into its event variant.
// Payloads that are not JSON, or JSON of an unknown shape, return an error;
// callers skip such records without failing the stream.
func ParseEvent(data []byte) (Event, error) {
	// A bare JSON string is an incremental token.
	var token string
	if err := json.Unmarshal(data, &token); err == nil {
		return TokenEvent{Token: token}, nil
	}

	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse agent event")
	}

	switch raw.Type {
	case "message":
		var nested nestedContent
		if err := json.Unmarshal(raw.Content, &nested); err == nil && nested.Content != "" {
			return MessageEvent{Content: nested.Content}, nil
		}
		// Some agent versions send the text directly under content.
		var direct string
		if err := json.Unmarshal(raw.Content, &direct); err == nil {
			return MessageEvent{Content: direct}, nil
		}
		return nil, errors.New("message event without usable content")
	case "error":
		var msg string
		if err := json.Unmarshal(raw.Content, &msg); err != nil {
			msg = string(raw.Content)
		}
		return ErrorEvent{Content: msg}, nil
	case "reasoning":
		var msg string
		if err := json.Unmarshal(raw.Content, &msg); err != nil {
			msg = string(raw.Content)
		}
		return ReasoningEvent{Content: msg}, nil
	case "tool":
		return ToolEvent{Name: raw.Name, Input: raw.Input, Output: raw.Output}, nil
	default:
		return nil, errors.Errorf("unknown agent event type %q", raw.Type)
	}
}
