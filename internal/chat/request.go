package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Stage selects which tool registry backs a request.
type Stage string

const (
	StageProd Stage = "prod"
	StageTest Stage = "test"
)

// Stages lists every known stage.
var Stages = []Stage{StageProd, StageTest}

// ErrUnknownStage is returned for any stage tag other than prod or test.
var ErrUnknownStage = errors.New("unknown stage")

// ParseStage validates a stage tag. There is no default: an empty or
// unrecognized value is an error.
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StageProd, StageTest:
		return Stage(s), nil
	}
	return "", fmt.Errorf("%w %q (want %q or %q)", ErrUnknownStage, s, StageProd, StageTest)
}

// ChatRequest is the inbound chat payload.
type ChatRequest struct {
	Messages []Message
	Model    string
	Stage    Stage
}

type wireRequest struct {
	Messages []Message `json:"messages"`
	Model    string    `json:"model"`
	Stage    string    `json:"stage"`
}

// RequestError is a malformed or invalid request, rejected before any
// registry or provider is contacted.
type RequestError struct {
	Reason string
	Err    error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *RequestError) Unwrap() error { return e.Err }

// DecodeRequest reads and validates a chat request body.
func DecodeRequest(r io.Reader) (*ChatRequest, error) {
	var w wireRequest
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		return nil, &RequestError{Reason: "invalid request body", Err: err}
	}

	stage, err := ParseStage(w.Stage)
	if err != nil {
		return nil, &RequestError{Reason: "invalid stage", Err: err}
	}
	if len(w.Messages) == 0 {
		return nil, &RequestError{Reason: "messages must not be empty"}
	}

	return &ChatRequest{
		Messages: w.Messages,
		Model:    w.Model,
		Stage:    stage,
	}, nil
}
