// Package chat holds the inbound conversation model: the request envelope,
// messages and their typed parts as sent by the conversation UI.
package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ToolState is the lifecycle position of a tool call part.
type ToolState string

const (
	ToolInputStreaming  ToolState = "input-streaming"
	ToolInputAvailable  ToolState = "input-available"
	ToolOutputAvailable ToolState = "output-available"
	ToolOutputError     ToolState = "output-error"
)

// Part is one structured segment of a message. The set of implementations
// is closed; switch on the concrete type.
type Part interface {
	part()
}

// TextPart is narrative text.
type TextPart struct {
	Text string
}

// ReasoningPart is model reasoning shown separately from the answer.
type ReasoningPart struct {
	Text string
}

// SourceURLPart is a citation.
type SourceURLPart struct {
	SourceID string
	URL      string
	Title    string
}

// ToolCallPart is one tool invocation and, depending on State, its result.
type ToolCallPart struct {
	ToolCallID string
	ToolName   string
	Input      json.RawMessage
	State      ToolState
	Output     json.RawMessage
	ErrorText  string
}

func (TextPart) part()      {}
func (ReasoningPart) part() {}
func (SourceURLPart) part() {}
func (ToolCallPart) part()  {}

var (
	_ Part = TextPart{}
	_ Part = ReasoningPart{}
	_ Part = SourceURLPart{}
	_ Part = ToolCallPart{}
)

// Message is a single conversation turn. Decoded messages are never mutated.
type Message struct {
	ID    string
	Role  Role
	Parts []Part
}

// Text concatenates the message's text parts.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if t, ok := p.(TextPart); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// wireMessage mirrors the UI message JSON shape.
type wireMessage struct {
	ID    string            `json:"id"`
	Role  Role              `json:"role"`
	Parts []json.RawMessage `json:"parts"`
}

// wirePart is the union of every field a UI part may carry.
type wirePart struct {
	Type       string          `json:"type"`
	Text       string          `json:"text"`
	SourceID   string          `json:"sourceId"`
	URL        string          `json:"url"`
	Title      string          `json:"title"`
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	State      ToolState       `json:"state"`
	Input      json.RawMessage `json:"input"`
	Output     json.RawMessage `json:"output"`
	ErrorText  string          `json:"errorText"`
}

// UnmarshalJSON decodes a UI message. Part types that carry nothing the
// model needs (step markers, files, data parts) are skipped.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Role {
	case RoleUser, RoleAssistant, RoleSystem:
	default:
		return fmt.Errorf("unknown role %q", w.Role)
	}

	parts := make([]Part, 0, len(w.Parts))
	for i, raw := range w.Parts {
		var wp wirePart
		if err := json.Unmarshal(raw, &wp); err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}
		p, err := decodePart(wp)
		if err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}
		if p != nil {
			parts = append(parts, p)
		}
	}

	*m = Message{ID: w.ID, Role: w.Role, Parts: parts}
	return nil
}

func decodePart(wp wirePart) (Part, error) {
	switch {
	case wp.Type == "text":
		return TextPart{Text: wp.Text}, nil
	case wp.Type == "reasoning":
		return ReasoningPart{Text: wp.Text}, nil
	case wp.Type == "source-url":
		return SourceURLPart{SourceID: wp.SourceID, URL: wp.URL, Title: wp.Title}, nil
	case wp.Type == "dynamic-tool", strings.HasPrefix(wp.Type, "tool-"):
		name := wp.ToolName
		if name == "" {
			name = strings.TrimPrefix(wp.Type, "tool-")
		}
		if wp.ToolCallID == "" {
			return nil, fmt.Errorf("tool part %q has no toolCallId", name)
		}
		state := wp.State
		switch state {
		case ToolInputStreaming, ToolInputAvailable, ToolOutputAvailable, ToolOutputError:
		case "error":
			state = ToolOutputError
		default:
			return nil, fmt.Errorf("tool part %q has unknown state %q", name, wp.State)
		}
		return ToolCallPart{
			ToolCallID: wp.ToolCallID,
			ToolName:   name,
			Input:      wp.Input,
			State:      state,
			Output:     wp.Output,
			ErrorText:  wp.ErrorText,
		}, nil
	}
	return nil, nil
}
