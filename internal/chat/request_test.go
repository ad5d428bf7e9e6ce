package chat

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStage(t *testing.T) {
	for _, s := range []string{"prod", "test"} {
		got, err := ParseStage(s)
		require.NoError(t, err)
		assert.Equal(t, Stage(s), got)
	}

	for _, s := range []string{"", "PROD", "staging", "dev"} {
		_, err := ParseStage(s)
		assert.ErrorIs(t, err, ErrUnknownStage, "stage %q", s)
	}
}

func TestDecodeRequest(t *testing.T) {
	body := `{
		"model": "claude-haiku-4-5",
		"stage": "test",
		"trigger": "submit-message",
		"messages": [
			{"id": "m1", "role": "user", "parts": [{"type": "text", "text": "list my regions"}]},
			{"id": "m2", "role": "assistant", "parts": [
				{"type": "step-start"},
				{"type": "reasoning", "text": "thinking"},
				{"type": "tool-list_regions", "toolCallId": "c1", "state": "output-available",
				 "input": {"limit": 2}, "output": {"content": [{"type": "text", "text": "[]"}]}},
				{"type": "dynamic-tool", "toolName": "echo", "toolCallId": "c2", "state": "output-error", "input": {}, "errorText": "boom"},
				{"type": "source-url", "sourceId": "s1", "url": "https://aws.amazon.com"},
				{"type": "text", "text": "Done."}
			]}
		]
	}`

	req, err := DecodeRequest(strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, StageTest, req.Stage)
	assert.Equal(t, "claude-haiku-4-5", req.Model)
	require.Len(t, req.Messages, 2)

	user := req.Messages[0]
	assert.Equal(t, RoleUser, user.Role)
	assert.Equal(t, "list my regions", user.Text())

	asst := req.Messages[1]
	require.Len(t, asst.Parts, 5, "step-start is skipped")
	assert.Equal(t, ReasoningPart{Text: "thinking"}, asst.Parts[0])

	call, ok := asst.Parts[1].(ToolCallPart)
	require.True(t, ok)
	assert.Equal(t, "list_regions", call.ToolName)
	assert.Equal(t, ToolOutputAvailable, call.State)
	assert.JSONEq(t, `{"limit":2}`, string(call.Input))

	dyn, ok := asst.Parts[2].(ToolCallPart)
	require.True(t, ok)
	assert.Equal(t, "echo", dyn.ToolName)
	assert.Equal(t, ToolOutputError, dyn.State)
	assert.Equal(t, "boom", dyn.ErrorText)

	assert.Equal(t, SourceURLPart{SourceID: "s1", URL: "https://aws.amazon.com"}, asst.Parts[3])
	assert.Equal(t, "Done.", asst.Text())
}

func TestDecodeRequestRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"stage": "prod", "messages": [`},
		{"missing stage", `{"messages": [{"role": "user", "parts": []}]}`},
		{"unknown stage", `{"stage": "staging", "messages": [{"role": "user", "parts": []}]}`},
		{"no messages", `{"stage": "prod", "messages": []}`},
		{"unknown role", `{"stage": "prod", "messages": [{"role": "tool", "parts": []}]}`},
		{"tool part without id", `{"stage": "prod", "messages": [{"role": "assistant", "parts": [{"type": "tool-x", "state": "input-available"}]}]}`},
		{"tool part bad state", `{"stage": "prod", "messages": [{"role": "assistant", "parts": [{"type": "tool-x", "toolCallId": "c", "state": "done"}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRequest(strings.NewReader(tt.body))
			var reqErr *RequestError
			require.True(t, errors.As(err, &reqErr), "got %v", err)
		})
	}
}

func TestDecodeRequestUnknownStageWrapsSentinel(t *testing.T) {
	_, err := DecodeRequest(strings.NewReader(`{"stage": "qa", "messages": [{"role": "user", "parts": []}]}`))
	assert.ErrorIs(t, err, ErrUnknownStage)
}
