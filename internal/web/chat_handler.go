package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joestump/awschat/internal/chat"
	"github.com/joestump/awschat/internal/completion"
	"github.com/joestump/awschat/internal/db"
	"github.com/joestump/awschat/internal/encoder"
	"github.com/joestump/awschat/internal/logger"
	"github.com/joestump/awschat/internal/stream"
)

// handleChat handles POST /api/chat. Malformed requests are rejected with a
// JSON error before anything upstream is contacted. Everything after that,
// registry failures included, is reported in-band on the event stream.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := chat.DecodeRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeChatError(w, http.StatusBadRequest, err.Error(), "invalid_request_error", requestErrorCode(err))
		return
	}

	model := req.Model
	if model == "" {
		model = s.cfg.DefaultModel
	}

	runID := "run-" + uuid.NewString()
	ctx := logger.ContextWithLogger(r.Context(), s.log.With(
		zap.String("run_id", runID),
		zap.String("stage", string(req.Stage)),
		zap.String("model", model),
	))
	started := time.Now()
	log := logger.L(ctx)
	log.Info("chat run started", zap.Int("messages", len(req.Messages)))

	s.beginRun(ctx, runID, req.Stage, model, started)

	var src stream.Stream
	sel, err := s.router.Select(ctx, req.Stage)
	if err != nil {
		log.Warn("tool registry unavailable", zap.Error(err))
		src = stream.FromEvents(stream.Error{Text: err.Error()})
	} else {
		defer sel.Close() //nolint:errcheck
		log.Debug("tools selected", zap.Int("tools", sel.Tools.Len()))
		src = s.provider.Stream(ctx, completion.Request{
			Model:    model,
			Messages: req.Messages,
			Tools:    sel.Tools,
			System:   completion.SystemPolicy,
		})
	}

	sum := stream.NewSummarizer(ctx, src)
	opts := encoder.Options{SendReasoning: true, SendSources: true}
	if s.hub != nil {
		opts.Observer = func(frame []byte) { s.hub.Publish(runID, string(frame)) }
	}

	w.Header().Set("X-Run-Id", runID)
	st, err := encoder.Encode(ctx, w, sum, opts)
	s.endRun(ctx, runID, st, sum.Summary(), err)

	log.Info("chat run finished",
		zap.Duration("duration", time.Since(started)),
		zap.Int("frames", st.Frames),
		zap.Int("tool_calls", st.ToolCalls),
		zap.Bool("summarized", sum.Summary() != ""),
		zap.Error(err),
	)
}

// beginRun opens the run in the hub and the ledger. Ledger failures are
// logged and never fail the request.
func (s *Server) beginRun(ctx context.Context, runID string, stage chat.Stage, model string, started time.Time) {
	if s.hub != nil {
		s.hub.Open(runID)
	}
	if s.ledger == nil {
		return
	}
	err := s.ledger.InsertRun(ctx, &db.Run{
		ID:        runID,
		Stage:     string(stage),
		Model:     model,
		StartedAt: db.Timestamp(started),
	})
	if err != nil {
		logger.L(ctx).Error("ledger insert", zap.Error(err))
	}
}

// endRun records the outcome and schedules the tail buffer for removal.
func (s *Server) endRun(ctx context.Context, runID string, st encoder.Stats, summary string, encErr error) {
	if s.hub != nil {
		s.hub.Close(runID)
		retention := s.cfg.TailRetention
		if retention <= 0 {
			s.hub.Remove(runID)
		} else {
			time.AfterFunc(retention, func() { s.hub.Remove(runID) })
		}
	}
	if s.ledger == nil {
		return
	}

	o := db.Outcome{
		Status:      runStatus(st, encErr),
		EndedAt:     db.Timestamp(time.Now()),
		ToolCalls:   st.ToolCalls,
		ToolErrors:  st.ToolErrors,
		TextEmitted: st.TextEmitted,
		Summary:     summary,
		Error:       st.ErrorText,
	}
	if encErr != nil && o.Error == "" {
		o.Error = encErr.Error()
	}
	if err := s.ledger.FinishRun(context.WithoutCancel(ctx), runID, o); err != nil {
		logger.L(ctx).Error("ledger finish", zap.Error(err))
	}
}

func runStatus(st encoder.Stats, encErr error) string {
	switch {
	case errors.Is(encErr, context.Canceled), errors.Is(encErr, context.DeadlineExceeded):
		return db.StatusCancelled
	case encErr != nil, st.ErrorText != "", !st.Finished:
		return db.StatusFailed
	}
	return db.StatusCompleted
}

func requestErrorCode(err error) string {
	if errors.Is(err, chat.ErrUnknownStage) {
		return "invalid_stage"
	}
	return "invalid_request"
}

// writeChatError writes a JSON error response.
func writeChatError(w http.ResponseWriter, status int, message, errType, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ChatError{
		Error: ChatErrorDetail{
			Message: message,
			Type:    errType,
			Code:    code,
		},
	})
}
