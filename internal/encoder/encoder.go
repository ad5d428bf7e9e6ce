// Package encoder writes a response event stream to an HTTP client in the
// UI message stream protocol: one server-sent event per chunk, terminated by
// a [DONE] sentinel.
package encoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/joestump/awschat/internal/stream"
)

// ProtocolHeader identifies the UI message stream protocol version to clients.
const ProtocolHeader = "x-vercel-ai-ui-message-stream"

var doneFrame = []byte("data: [DONE]\n\n")

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("response writer does not support streaming")

// Options controls which optional parts reach the client.
type Options struct {
	SendReasoning bool
	SendSources   bool

	// Observer, when set, receives every frame written, including the
	// terminating [DONE] frame.
	Observer func(frame []byte)
}

// Stats describes what was written.
type Stats struct {
	Frames      int
	ToolCalls   int
	ToolErrors  int
	TextEmitted bool
	Finished    bool
	ErrorText   string
}

// Encode drains s into w. It returns when the stream ends, the client goes
// away, or a write fails. s is always closed.
func Encode(ctx context.Context, w http.ResponseWriter, s stream.Stream, opts Options) (Stats, error) {
	defer s.Close() //nolint:errcheck

	var st Stats
	flusher, ok := w.(http.Flusher)
	if !ok {
		return st, ErrStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set(ProtocolHeader, "v1")
	w.WriteHeader(http.StatusOK)

	write := func(frame []byte) error {
		if _, err := w.Write(frame); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
		flusher.Flush()
		if opts.Observer != nil {
			opts.Observer(frame)
		}
		return nil
	}

	for s.Next() {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		ev := s.Current()
		st.observe(ev)

		payload, err := Chunk(ev, opts)
		if err != nil {
			return st, err
		}
		if payload == nil {
			continue
		}
		if err := write(Frame(payload)); err != nil {
			return st, err
		}
		st.Frames++
	}
	if err := ctx.Err(); err != nil {
		return st, err
	}
	if err := s.Err(); err != nil {
		st.ErrorText = err.Error()
		payload, _ := json.Marshal(errorChunk{Type: "error", ErrorText: err.Error()})
		if err := write(Frame(payload)); err != nil {
			return st, err
		}
		st.Frames++
	}

	return st, write(doneFrame)
}

// Frame wraps a chunk payload as one server-sent event.
func Frame(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+8)
	out = append(out, "data: "...)
	out = append(out, payload...)
	return append(out, '\n', '\n')
}

func (st *Stats) observe(ev stream.Event) {
	switch e := ev.(type) {
	case stream.TextDelta:
		if e.Delta != "" {
			st.TextEmitted = true
		}
	case stream.ToolInputAvailable:
		st.ToolCalls++
	case stream.ToolError:
		st.ToolErrors++
	case stream.Finish:
		st.Finished = true
	case stream.Error:
		st.ErrorText = e.Text
	}
}
