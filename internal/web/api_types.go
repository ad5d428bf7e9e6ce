package web

import "github.com/joestump/awschat/internal/db"

// --- API Response Wrappers ---

// APIRunsResponse wraps a list of runs for JSON API responses.
type APIRunsResponse struct {
	Runs []APIRun `json:"runs"`
}

// --- API Resource Types ---

// APIRun is the JSON representation of a ledger run.
type APIRun struct {
	ID          string  `json:"id"`
	Stage       string  `json:"stage"`
	Model       string  `json:"model"`
	Status      string  `json:"status"`
	StartedAt   string  `json:"started_at"`
	EndedAt     *string `json:"ended_at"`
	ToolCalls   int     `json:"tool_calls"`
	ToolErrors  int     `json:"tool_errors"`
	TextEmitted bool    `json:"text_emitted"`
	Summarized  bool    `json:"summarized"`
	Summary     *string `json:"summary,omitempty"`
	Error       *string `json:"error"`
	Live        bool    `json:"live"`
}

// ChatError is the error body of the chat endpoint.
type ChatError struct {
	Error ChatErrorDetail `json:"error"`
}

// ChatErrorDetail describes a rejected chat request.
type ChatErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// --- Conversion Helpers ---

func toAPIRun(r db.Run) APIRun {
	return APIRun{
		ID:          r.ID,
		Stage:       r.Stage,
		Model:       r.Model,
		Status:      r.Status,
		StartedAt:   r.StartedAt,
		EndedAt:     r.EndedAt,
		ToolCalls:   r.ToolCalls,
		ToolErrors:  r.ToolErrors,
		TextEmitted: r.TextEmitted,
		Summarized:  r.Summarized,
		Error:       r.Error,
	}
}

func toAPIRuns(runs []db.Run) []APIRun {
	out := make([]APIRun, len(runs))
	for i, r := range runs {
		out[i] = toAPIRun(r)
	}
	return out
}
