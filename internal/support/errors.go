package support

import (
	"errors"
	"fmt"
)

// Stage names the step of an attempt that failed. The lifecycle collapses every
// stage into StateFailed; the stage is kept for logs and metrics.
type Stage string

const (
	StageNone    Stage = ""
	StageAccount Stage = "account"
	StageCollect Stage = "collect"
	StageSend    Stage = "send"
)

// StageError wraps a backend failure with the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageOf returns the stage recorded in err, or StageNone.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return StageNone
}

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotAccepted     = errors.New("event not accepted in current state")
	ErrInvalidDraft    = errors.New("message is required")
)
