package web

import (
	"fmt"
	"net/http"

	"github.com/joestump/awschat/internal/db"
	"github.com/joestump/awschat/internal/encoder"
)

// handleRunEvents replays and follows the encoded frames of a run. Frames
// are written exactly as the chat client received them, so the tail ends
// with the run's own [DONE] frame.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	ch, unsubscribe, ok := s.hub.Subscribe(r.PathValue("id"))
	defer unsubscribe()
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set(encoder.ProtocolHeader, "v1")

	// Replays are complete; a reconnect would only duplicate them.
	_, _ = fmt.Fprintf(w, "retry: 30000\n\n")
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			_, _ = fmt.Fprint(w, frame)
			flusher.Flush()
		}
	}
}

// runView is the data behind the run page.
type runView struct {
	Run     db.Run
	Live    bool
	Summary string
}

// handleRunPage renders a run with its summary as HTML.
func (s *Server) handleRunPage(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		http.Error(w, "run ledger disabled", http.StatusNotFound)
		return
	}

	run, err := s.ledger.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		http.Error(w, "database error", http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	view := runView{
		Run:  *run,
		Live: s.hub != nil && s.hub.IsActive(run.ID),
	}
	if run.Summary != nil {
		view.Summary = *run.Summary
	}
	s.render(w, "run.html", view)
}
