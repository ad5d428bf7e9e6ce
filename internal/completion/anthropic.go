package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joestump/awschat/internal/logger"
	"github.com/joestump/awschat/internal/registry"
	"github.com/joestump/awschat/internal/stream"
)

// AnthropicOptions configures the Anthropic provider.
type AnthropicOptions struct {
	APIKey         string // empty reads ANTHROPIC_API_KEY
	BaseURL        string
	MaxTokens      int
	MaxSteps       int
	ThinkingBudget int
}

// Anthropic streams completions from the Anthropic Messages API and
// dispatches the tool calls the model makes against the request's ToolSet.
type Anthropic struct {
	client         anthropic.Client
	maxTokens      int64
	maxSteps       int
	thinkingBudget int64
}

// NewAnthropic creates the provider. Retries are disabled: a failed model
// call ends the response.
func NewAnthropic(opts AnthropicOptions) *Anthropic {
	reqOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = 1
	}
	return &Anthropic{
		client:         anthropic.NewClient(reqOpts...),
		maxTokens:      int64(opts.MaxTokens),
		maxSteps:       opts.MaxSteps,
		thinkingBudget: int64(opts.ThinkingBudget),
	}
}

// Stream implements Provider.
func (a *Anthropic) Stream(ctx context.Context, req Request) stream.Stream {
	return stream.Pipe(ctx, func(ctx context.Context, emit stream.Emit) error {
		return a.run(ctx, req, emit)
	})
}

func (a *Anthropic) run(ctx context.Context, req Request, emit stream.Emit) error {
	msgs, extraSystem := convertMessages(req.Messages)
	system := req.System
	if extraSystem != "" {
		system += "\n\n" + extraSystem
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: a.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Tools:     toolParams(req.Tools),
	}
	if a.thinkingBudget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(a.thinkingBudget)
	}

	if !emit(stream.Start{MessageID: "msg-" + uuid.NewString()}) {
		return ctx.Err()
	}

	reason := "stop"
	for step := 0; step < a.maxSteps; step++ {
		params.Messages = msgs

		if !emit(stream.StartStep{}) {
			return ctx.Err()
		}
		res, err := a.step(ctx, params, req.Tools, emit)
		if err != nil {
			return err
		}
		if !emit(stream.FinishStep{}) {
			return ctx.Err()
		}

		reason = finishReason(res.stopReason)
		if res.stopReason != "tool_use" || len(res.results) == 0 {
			break
		}
		msgs = append(msgs,
			anthropic.NewAssistantMessage(res.assistant...),
			anthropic.NewUserMessage(res.results...),
		)
	}

	logger.L(ctx).Debug("completion finished", zap.String("reason", reason))
	if !emit(stream.Finish{Reason: reason}) {
		return ctx.Err()
	}
	return nil
}

// stepResult is what one model call left behind for the next one.
type stepResult struct {
	stopReason string
	assistant  []anthropic.ContentBlockParamUnion
	results    []anthropic.ContentBlockParamUnion
}

// block tracks one content block while it streams.
type block struct {
	kind      string
	id        string
	name      string
	text      []byte
	signature string
}

func (a *Anthropic) step(ctx context.Context, params anthropic.MessageNewParams, tools *registry.ToolSet, emit stream.Emit) (*stepResult, error) {
	callCtx, cancelCalls := context.WithCancel(ctx)
	defer cancelCalls()

	s := a.client.Messages.NewStreaming(ctx, params)
	defer s.Close() //nolint:errcheck

	var (
		msgID   = "msg"
		blocks  = map[int64]*block{}
		order   []int64
		res     = &stepResult{}
		calls   errgroup.Group
		resMu   sync.Mutex
		results = map[string]anthropic.ContentBlockParamUnion{}
	)

	dispatch := func(b *block, input json.RawMessage) error {
		var (
			out     json.RawMessage
			isError bool
			err     error
		)
		if tools == nil {
			err = errors.New("no tools are available for this request")
		} else {
			out, isError, err = tools.Call(callCtx, b.name, input)
		}

		// Cancelled calls are not tool failures; the step reports its own error.
		if callCtx.Err() != nil {
			return nil
		}

		var content anthropic.ContentBlockParamUnion
		if err != nil {
			logger.L(ctx).Warn("tool call failed", zap.String("tool", b.name), zap.Error(err))
			content = anthropic.NewToolResultBlock(b.id, err.Error(), true)
			emit(stream.ToolError{ToolCallID: b.id, ToolName: b.name, ErrorText: err.Error()})
		} else {
			content = anthropic.NewToolResultBlock(b.id, toolResultText(out), isError)
			emit(stream.ToolResult{ToolCallID: b.id, ToolName: b.name, Output: out})
		}

		resMu.Lock()
		results[b.id] = content
		resMu.Unlock()
		return nil
	}

	ok := true
	for ok && s.Next() {
		switch ev := s.Current().AsAny().(type) {
		case anthropic.MessageStartEvent:
			msgID = ev.Message.ID

		case anthropic.ContentBlockStartEvent:
			b := &block{kind: ev.ContentBlock.Type, id: fmt.Sprintf("%s-%d", msgID, ev.Index)}
			blocks[ev.Index] = b
			order = append(order, ev.Index)
			switch b.kind {
			case "text":
				ok = emit(stream.TextStart{ID: b.id})
			case "thinking":
				ok = emit(stream.ReasoningStart{ID: b.id})
			case "tool_use":
				b.id, b.name = ev.ContentBlock.ID, ev.ContentBlock.Name
				ok = emit(stream.ToolInputStart{ToolCallID: b.id, ToolName: b.name})
			case "redacted_thinking":
				b.text = []byte(ev.ContentBlock.Data)
			}

		case anthropic.ContentBlockDeltaEvent:
			b := blocks[ev.Index]
			if b == nil {
				continue
			}
			switch d := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				b.text = append(b.text, d.Text...)
				ok = emit(stream.TextDelta{ID: b.id, Delta: d.Text})
			case anthropic.ThinkingDelta:
				b.text = append(b.text, d.Thinking...)
				ok = emit(stream.ReasoningDelta{ID: b.id, Delta: d.Thinking})
			case anthropic.SignatureDelta:
				b.signature += d.Signature
			case anthropic.InputJSONDelta:
				b.text = append(b.text, d.PartialJSON...)
				ok = emit(stream.ToolInputDelta{ToolCallID: b.id, Delta: d.PartialJSON})
			case anthropic.CitationsDelta:
				if d.Citation.URL != "" {
					ok = emit(stream.SourceURL{
						SourceID: "src-" + uuid.NewString()[:8],
						URL:      d.Citation.URL,
						Title:    d.Citation.Title,
					})
				}
			}

		case anthropic.ContentBlockStopEvent:
			b := blocks[ev.Index]
			if b == nil {
				continue
			}
			switch b.kind {
			case "text":
				ok = emit(stream.TextEnd{ID: b.id})
			case "thinking":
				ok = emit(stream.ReasoningEnd{ID: b.id})
			case "tool_use":
				input := toolInput(b.text)
				if !json.Valid(input) {
					input = json.RawMessage(`{}`)
				}
				b.text = input
				if ok = emit(stream.ToolInputAvailable{ToolCallID: b.id, ToolName: b.name, Input: input}); ok {
					calls.Go(func() error { return dispatch(b, input) })
				}
			}

		case anthropic.MessageDeltaEvent:
			res.stopReason = string(ev.Delta.StopReason)
		}
	}

	if err := s.Err(); err != nil || !ok {
		cancelCalls()
		_ = calls.Wait()
		if err != nil {
			return nil, fmt.Errorf("anthropic stream: %w", err)
		}
		return nil, ctx.Err()
	}
	_ = calls.Wait()

	for _, idx := range order {
		b := blocks[idx]
		switch b.kind {
		case "text":
			if len(b.text) > 0 {
				res.assistant = append(res.assistant, anthropic.NewTextBlock(string(b.text)))
			}
		case "thinking":
			res.assistant = append(res.assistant, anthropic.NewThinkingBlock(b.signature, string(b.text)))
		case "redacted_thinking":
			res.assistant = append(res.assistant, anthropic.NewRedactedThinkingBlock(string(b.text)))
		case "tool_use":
			res.assistant = append(res.assistant, anthropic.NewToolUseBlock(b.id, json.RawMessage(b.text), b.name))
			res.results = append(res.results, results[b.id])
		}
	}
	return res, nil
}
