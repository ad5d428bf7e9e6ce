package completion

import (
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/tidwall/gjson"

	"github.com/joestump/awschat/internal/chat"
	"github.com/joestump/awschat/internal/registry"
)

// convertMessages turns UI messages into Anthropic message params.
// System-role text is returned separately so it can be appended to the
// system prompt. Tool calls that never completed are dropped, since a
// tool_use block without a matching tool_result is rejected upstream.
func convertMessages(msgs []chat.Message) ([]anthropic.MessageParam, string) {
	var (
		out    []anthropic.MessageParam
		system []string
	)

	for _, m := range msgs {
		switch m.Role {
		case chat.RoleSystem:
			if t := strings.TrimSpace(m.Text()); t != "" {
				system = append(system, t)
			}

		case chat.RoleUser:
			var blocks []anthropic.ContentBlockParamUnion
			for _, p := range m.Parts {
				if t, ok := p.(chat.TextPart); ok && t.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(t.Text))
				}
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewUserMessage(blocks...))
			}

		case chat.RoleAssistant:
			var (
				blocks  []anthropic.ContentBlockParamUnion
				results []anthropic.ContentBlockParamUnion
			)
			for _, p := range m.Parts {
				switch p := p.(type) {
				case chat.TextPart:
					if p.Text != "" {
						blocks = append(blocks, anthropic.NewTextBlock(p.Text))
					}
				case chat.ToolCallPart:
					switch p.State {
					case chat.ToolOutputAvailable:
						blocks = append(blocks, anthropic.NewToolUseBlock(p.ToolCallID, toolInput(p.Input), p.ToolName))
						results = append(results, anthropic.NewToolResultBlock(p.ToolCallID, toolResultText(p.Output), gjson.GetBytes(p.Output, "isError").Bool()))
					case chat.ToolOutputError:
						blocks = append(blocks, anthropic.NewToolUseBlock(p.ToolCallID, toolInput(p.Input), p.ToolName))
						results = append(results, anthropic.NewToolResultBlock(p.ToolCallID, p.ErrorText, true))
					}
				}
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
			if len(results) > 0 {
				out = append(out, anthropic.NewUserMessage(results...))
			}
		}
	}

	return out, strings.Join(system, "\n\n")
}

func toolInput(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(`{}`)
	}
	return raw
}

// toolResultText flattens a registry result for the model: its text
// content when it has any, otherwise the raw JSON.
func toolResultText(out json.RawMessage) string {
	var texts []string
	gjson.GetBytes(out, "content").ForEach(func(_, c gjson.Result) bool {
		if c.Get("type").String() == "text" {
			texts = append(texts, c.Get("text").String())
		}
		return true
	})
	if len(texts) > 0 {
		return strings.Join(texts, "\n")
	}
	return string(out)
}

// toolParams advertises a ToolSet to the model.
func toolParams(ts *registry.ToolSet) []anthropic.ToolUnionParam {
	if ts == nil {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, ts.Len())
	for _, t := range ts.Tools() {
		var schema struct {
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		_ = json.Unmarshal(t.InputSchema, &schema)
		if schema.Properties == nil {
			schema.Properties = map[string]any{}
		}

		tp := anthropic.ToolParam{
			Name: t.Name,
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: schema.Properties,
				Required:   schema.Required,
			},
		}
		if t.Description != "" {
			tp.Description = anthropic.String(t.Description)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tp})
	}
	return out
}

// finishReason maps an Anthropic stop reason onto the UI vocabulary.
func finishReason(stop string) string {
	switch stop {
	case "end_turn", "stop_sequence", "":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool-calls"
	case "refusal":
		return "content-filter"
	}
	return "other"
}
