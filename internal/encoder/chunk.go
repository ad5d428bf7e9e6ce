package encoder

import (
	"encoding/json"
	"fmt"

	"github.com/joestump/awschat/internal/stream"
)

type startChunk struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId,omitempty"`
}

type typeChunk struct {
	Type string `json:"type"`
}

type partChunk struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type deltaChunk struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Delta string `json:"delta"`
}

type sourceChunk struct {
	Type     string `json:"type"`
	SourceID string `json:"sourceId"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
}

type toolStartChunk struct {
	Type       string `json:"type"`
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
}

type toolDeltaChunk struct {
	Type           string `json:"type"`
	ToolCallID     string `json:"toolCallId"`
	InputTextDelta string `json:"inputTextDelta"`
}

type toolInputChunk struct {
	Type       string          `json:"type"`
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Input      json.RawMessage `json:"input"`
}

type toolOutputChunk struct {
	Type       string          `json:"type"`
	ToolCallID string          `json:"toolCallId"`
	Output     json.RawMessage `json:"output"`
}

type toolErrorChunk struct {
	Type       string `json:"type"`
	ToolCallID string `json:"toolCallId"`
	ErrorText  string `json:"errorText"`
}

type errorChunk struct {
	Type      string `json:"type"`
	ErrorText string `json:"errorText"`
}

// Chunk renders one event as a UI message stream chunk. It returns nil
// for events opts suppresses.
func Chunk(ev stream.Event, opts Options) ([]byte, error) {
	var v any
	switch e := ev.(type) {
	case stream.Start:
		v = startChunk{Type: "start", MessageID: e.MessageID}
	case stream.StartStep, stream.FinishStep, stream.Finish:
		v = typeChunk{Type: ev.Type()}
	case stream.TextStart:
		v = partChunk{Type: "text-start", ID: e.ID}
	case stream.TextDelta:
		v = deltaChunk{Type: "text-delta", ID: e.ID, Delta: e.Delta}
	case stream.TextEnd:
		v = partChunk{Type: "text-end", ID: e.ID}
	case stream.ReasoningStart:
		if !opts.SendReasoning {
			return nil, nil
		}
		v = partChunk{Type: "reasoning-start", ID: e.ID}
	case stream.ReasoningDelta:
		if !opts.SendReasoning {
			return nil, nil
		}
		v = deltaChunk{Type: "reasoning-delta", ID: e.ID, Delta: e.Delta}
	case stream.ReasoningEnd:
		if !opts.SendReasoning {
			return nil, nil
		}
		v = partChunk{Type: "reasoning-end", ID: e.ID}
	case stream.SourceURL:
		if !opts.SendSources {
			return nil, nil
		}
		v = sourceChunk{Type: "source-url", SourceID: e.SourceID, URL: e.URL, Title: e.Title}
	case stream.ToolInputStart:
		v = toolStartChunk{Type: "tool-input-start", ToolCallID: e.ToolCallID, ToolName: e.ToolName}
	case stream.ToolInputDelta:
		v = toolDeltaChunk{Type: "tool-input-delta", ToolCallID: e.ToolCallID, InputTextDelta: e.Delta}
	case stream.ToolInputAvailable:
		v = toolInputChunk{Type: "tool-input-available", ToolCallID: e.ToolCallID, ToolName: e.ToolName, Input: orNull(e.Input)}
	case stream.ToolResult:
		v = toolOutputChunk{Type: "tool-output-available", ToolCallID: e.ToolCallID, Output: orNull(e.Output)}
	case stream.ToolError:
		v = toolErrorChunk{Type: "tool-output-error", ToolCallID: e.ToolCallID, ErrorText: e.ErrorText}
	case stream.Error:
		v = errorChunk{Type: "error", ErrorText: e.Text}
	case stream.Raw:
		if !json.Valid(e.Payload) {
			return nil, fmt.Errorf("raw %s event: invalid JSON payload", e.Kind)
		}
		return e.Payload, nil
	default:
		return nil, fmt.Errorf("unsupported event %T", ev)
	}

	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s chunk: %w", ev.Type(), err)
	}
	return out, nil
}

func orNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || !json.Valid(raw) {
		return json.RawMessage("null")
	}
	return raw
}
