package stream

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joestump/awschat/internal/logger"
)

// SummaryState is the per-response accumulator of a Summarizer.
type SummaryState struct {
	EmittedText bool
	Outputs     []json.RawMessage
}

// Summarizer forwards a response stream unchanged, and when the response
// finishes without any narrative text but with tool output, inserts a
// synthesized text segment immediately before the Finish event.
type Summarizer struct {
	ctx   context.Context
	src   Stream
	state SummaryState
	ids   map[string]struct{}
	newID func() string

	pending  []Event
	cur      Event
	terminal bool
	summary  string
}

// SummarizerOption configures a Summarizer.
type SummarizerOption func(*Summarizer)

// WithIDFunc overrides how the synthetic text segment id is generated.
func WithIDFunc(fn func() string) SummarizerOption {
	return func(s *Summarizer) { s.newID = fn }
}

// NewSummarizer wraps src. The context only carries the logger.
func NewSummarizer(ctx context.Context, src Stream, opts ...SummarizerOption) *Summarizer {
	s := &Summarizer{
		ctx: ctx,
		src: src,
		ids: make(map[string]struct{}),
		newID: func() string {
			return "sum-" + uuid.NewString()[:8]
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next advances to the next event. After Finish has been yielded the
// source is never read again.
func (s *Summarizer) Next() bool {
	if len(s.pending) > 0 {
		s.cur = s.pending[0]
		s.pending = s.pending[1:]
		return true
	}
	if s.terminal || !s.src.Next() {
		return false
	}

	ev := s.src.Current()
	s.observe(ev)

	if fin, ok := ev.(Finish); ok {
		s.terminal = true
		s.pending = append(s.finalize(), fin)
		s.cur = s.pending[0]
		s.pending = s.pending[1:]
		return true
	}

	s.cur = ev
	return true
}

func (s *Summarizer) observe(ev Event) {
	if id := partID(ev); id != "" {
		s.ids[id] = struct{}{}
	}
	switch e := ev.(type) {
	case TextDelta:
		s.state.EmittedText = true
	case ToolResult:
		s.state.Outputs = append(s.state.Outputs, e.Output)
	}
}

// finalize returns the events to inject ahead of Finish, if any.
func (s *Summarizer) finalize() (injected []Event) {
	if s.state.EmittedText || len(s.state.Outputs) == 0 {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			logger.L(s.ctx).Error("summarizing tool outputs", zap.Any("panic", r))
			s.summary = ""
			injected = nil
		}
	}()

	summary := Summarize(s.state.Outputs)
	if summary == "" {
		return nil
	}
	s.summary = summary

	id := s.newID()
	for {
		if _, taken := s.ids[id]; !taken {
			break
		}
		id = s.newID()
	}
	s.ids[id] = struct{}{}

	logger.L(s.ctx).Debug("injecting tool output summary",
		zap.String("id", id),
		zap.Int("outputs", len(s.state.Outputs)))

	return []Event{
		TextStart{ID: id},
		TextDelta{ID: id, Delta: summary},
		TextEnd{ID: id},
	}
}

func (s *Summarizer) Current() Event { return s.cur }

func (s *Summarizer) Err() error { return s.src.Err() }

func (s *Summarizer) Close() error { return s.src.Close() }

// State returns the accumulator as observed so far.
func (s *Summarizer) State() SummaryState { return s.state }

// Summary returns the injected text, or "" if nothing was injected.
func (s *Summarizer) Summary() string { return s.summary }
