// Package completion invokes the model provider with a conversation and a
// tool set and turns its output into a stream of response events.
package completion

import (
	"context"
	"strings"

	"github.com/joestump/awschat/internal/chat"
	"github.com/joestump/awschat/internal/registry"
	"github.com/joestump/awschat/internal/stream"
)

// SystemPolicy is the fixed instruction sent with every conversation.
var SystemPolicy = strings.Join([]string{
	"You are an AWS-savvy assistant.",
	"When you call tools, always produce a clear, human-readable final answer.",
	"Do not dump raw JSON. Summarize the results in concise prose with markdown.",
	"For list-like data, prefer a small table with a few key columns.",
	"If there are many items, show a short summary (counts) and up to 10 examples unless the user asks for more.",
	"Use bullet lists or tables where helpful; keep output skimmable.",
}, "\n")

// Request is one completion call.
type Request struct {
	Model    string
	Messages []chat.Message
	Tools    *registry.ToolSet
	System   string
}

// Provider streams a model response. Failures are reported in-band as a
// terminal stream.Error event; the returned Stream is never nil.
type Provider interface {
	Stream(ctx context.Context, req Request) stream.Stream
}
