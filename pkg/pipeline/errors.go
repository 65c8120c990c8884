package pipeline

import (
	"errors"
	"fmt"
)

// Empty inputs are rejected before any backend call.
var (
	ErrEmptyContext  = errors.New("context is empty")
	ErrEmptyQuestion = errors.New("question is empty")
)

// Stage names one of the two backend calls of a request.
type Stage string

const (
	StageResponder Stage = "responder"
	StageValidator Stage = "validator"
)

// TransportError reports a backend failure during one stage. It is fatal for
// the request and never retried.
type TransportError struct {
	Stage Stage
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s call failed: %v", e.Stage, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsEmptyInput reports whether err is an empty context or question rejection.
func IsEmptyInput(err error) bool {
	return errors.Is(err, ErrEmptyContext) || errors.Is(err, ErrEmptyQuestion)
}
