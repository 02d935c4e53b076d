package pipeline

import (
	"fmt"

	"touch-braille-go/internal/apperr"
)

// RunError is the single terminal failure of a run.
type RunError struct {
	Stage Stage
	Kind  apperr.Kind
	Hint  string
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run failed at %s (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

func newRunError(stage Stage, kind apperr.Kind, err error) *RunError {
	return &RunError{Stage: stage, Kind: kind, Hint: apperr.Hint(kind), Err: err}
}
