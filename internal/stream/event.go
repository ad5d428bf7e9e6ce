package stream

import "encoding/json"

// Event is one typed increment of a streamed response. The set of
// implementations is closed by the unexported marker method.
type Event interface {
	Type() string
	event()
}

// Start opens a response.
type Start struct {
	MessageID string
}

// StartStep opens one model call within a response.
type StartStep struct{}

// FinishStep closes one model call within a response.
type FinishStep struct{}

// TextStart opens a narrative text segment.
type TextStart struct {
	ID string
}

// TextDelta appends to an open text segment.
type TextDelta struct {
	ID    string
	Delta string
}

// TextEnd closes a text segment.
type TextEnd struct {
	ID string
}

// ReasoningStart opens a reasoning segment.
type ReasoningStart struct {
	ID string
}

// ReasoningDelta appends to an open reasoning segment.
type ReasoningDelta struct {
	ID    string
	Delta string
}

// ReasoningEnd closes a reasoning segment.
type ReasoningEnd struct {
	ID string
}

// SourceURL is a citation.
type SourceURL struct {
	SourceID string
	URL      string
	Title    string
}

// ToolInputStart announces a tool call whose input is still streaming.
type ToolInputStart struct {
	ToolCallID string
	ToolName   string
}

// ToolInputDelta carries a fragment of a tool call's JSON input.
type ToolInputDelta struct {
	ToolCallID string
	Delta      string
}

// ToolInputAvailable carries a tool call's complete input.
type ToolInputAvailable struct {
	ToolCallID string
	ToolName   string
	Input      json.RawMessage
}

// ToolResult carries a tool call's output payload.
type ToolResult struct {
	ToolCallID string
	ToolName   string
	Output     json.RawMessage
}

// ToolError reports a tool call that failed to produce output.
type ToolError struct {
	ToolCallID string
	ToolName   string
	ErrorText  string
}

// Finish completes a response.
type Finish struct {
	Reason string
}

// Error terminates a response after an upstream failure.
type Error struct {
	Text string
}

// Raw is an event kind this package does not model. It is forwarded
// untouched with its original payload.
type Raw struct {
	Kind    string
	Payload json.RawMessage
}

func (Start) Type() string              { return "start" }
func (StartStep) Type() string          { return "start-step" }
func (FinishStep) Type() string         { return "finish-step" }
func (TextStart) Type() string          { return "text-start" }
func (TextDelta) Type() string          { return "text-delta" }
func (TextEnd) Type() string            { return "text-end" }
func (ReasoningStart) Type() string     { return "reasoning-start" }
func (ReasoningDelta) Type() string     { return "reasoning-delta" }
func (ReasoningEnd) Type() string       { return "reasoning-end" }
func (SourceURL) Type() string          { return "source-url" }
func (ToolInputStart) Type() string     { return "tool-input-start" }
func (ToolInputDelta) Type() string     { return "tool-input-delta" }
func (ToolInputAvailable) Type() string { return "tool-input-available" }
func (ToolResult) Type() string         { return "tool-result" }
func (ToolError) Type() string          { return "tool-error" }
func (Finish) Type() string             { return "finish" }
func (Error) Type() string              { return "error" }
func (r Raw) Type() string              { return r.Kind }

func (Start) event()              {}
func (StartStep) event()          {}
func (FinishStep) event()         {}
func (TextStart) event()          {}
func (TextDelta) event()          {}
func (TextEnd) event()            {}
func (ReasoningStart) event()     {}
func (ReasoningDelta) event()     {}
func (ReasoningEnd) event()       {}
func (SourceURL) event()          {}
func (ToolInputStart) event()     {}
func (ToolInputDelta) event()     {}
func (ToolInputAvailable) event() {}
func (ToolResult) event()         {}
func (ToolError) event()          {}
func (Finish) event()             {}
func (Error) event()              {}
func (Raw) event()                {}

// Interface compliance checks.
var (
	_ Event = Start{}
	_ Event = StartStep{}
	_ Event = FinishStep{}
	_ Event = TextStart{}
	_ Event = TextDelta{}
	_ Event = TextEnd{}
	_ Event = ReasoningStart{}
	_ Event = ReasoningDelta{}
	_ Event = ReasoningEnd{}
	_ Event = SourceURL{}
	_ Event = ToolInputStart{}
	_ Event = ToolInputDelta{}
	_ Event = ToolInputAvailable{}
	_ Event = ToolResult{}
	_ Event = ToolError{}
	_ Event = Finish{}
	_ Event = Error{}
	_ Event = Raw{}
)

// partID returns the identifier an event assigns to a message part, if any.
func partID(ev Event) string {
	switch e := ev.(type) {
	case TextStart:
		return e.ID
	case TextDelta:
		return e.ID
	case TextEnd:
		return e.ID
	case ReasoningStart:
		return e.ID
	case ReasoningDelta:
		return e.ID
	case ReasoningEnd:
		return e.ID
	case SourceURL:
		return e.SourceID
	case ToolInputStart:
		return e.ToolCallID
	case ToolInputDelta:
		return e.ToolCallID
	case ToolInputAvailable:
		return e.ToolCallID
	case ToolResult:
		return e.ToolCallID
	case ToolError:
		return e.ToolCallID
	case Start:
		return e.MessageID
	}
	return ""
}
