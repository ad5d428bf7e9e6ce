package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/joestump/awschat/internal/chat"
	"github.com/joestump/awschat/internal/db"
)

// --- JSON Helpers ---

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("writeJSON: encode error", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseLimitOffset extracts limit and offset query params with defaults and validation.
func parseLimitOffset(r *http.Request, defaultLimit int) (limit, offset int, err error) {
	limit = defaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			return 0, 0, fmt.Errorf("limit must be a non-negative integer")
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

// --- API Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAPIListRuns returns a filtered, paginated list of runs.
func (s *Server) handleAPIListRuns(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.writeError(w, http.StatusNotFound, "run ledger disabled")
		return
	}

	limit, offset, err := parseLimitOffset(r, 50)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	f := db.RunFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  limit,
		Offset: offset,
	}
	if v := r.URL.Query().Get("stage"); v != "" {
		stage, err := chat.ParseStage(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Stage = string(stage)
	}

	runs, err := s.ledger.ListRuns(r.Context(), f)
	if err != nil {
		s.log.Error("list runs", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	out := toAPIRuns(runs)
	for i := range out {
		out[i].Live = s.hub != nil && s.hub.IsActive(out[i].ID)
	}
	s.writeJSON(w, http.StatusOK, APIRunsResponse{Runs: out})
}

// handleAPIGetRun returns a single run with its summary.
func (s *Server) handleAPIGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	out := toAPIRun(*run)
	out.Summary = run.Summary
	out.Live = s.hub != nil && s.hub.IsActive(run.ID)
	s.writeJSON(w, http.StatusOK, out)
}

// lookupRun loads the run named by the id path value, writing the error
// response itself when it cannot.
func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*db.Run, bool) {
	if s.ledger == nil {
		s.writeError(w, http.StatusNotFound, "run ledger disabled")
		return nil, false
	}

	id := r.PathValue("id")
	run, err := s.ledger.GetRun(r.Context(), id)
	if err != nil {
		s.log.Error("get run", zap.String("run_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "database error")
		return nil, false
	}
	if run == nil {
		s.writeError(w, http.StatusNotFound, "run not found")
		return nil, false
	}
	return run, true
}
