package routine

import (
	"errors"
	"fmt"

	"github.com/tracelace/routine/pkg/value"
)

// Sentinel error kinds, one per row of spec §7's error-kind table. Callers
// discriminate with errors.Is; a *StepError additionally carries the
// originating step id and a context snapshot.
var (
	ErrRoutineLoad   = errors.New("routine-load")
	ErrSchema        = errors.New("schema")
	ErrUnknownTool   = errors.New("unknown-tool")
	ErrUnknownUDF    = errors.New("unknown-udf")
	ErrRender        = errors.New("render")
	ErrCondition     = errors.New("condition")
	ErrAssertion     = errors.New("assertion")
	ErrToolExec      = errors.New("tool-exec")
	ErrUDFExec       = errors.New("udf-exec")
	ErrStateNotFound = errors.New("state-not-found")
	ErrInvalidState  = errors.New("invalid-state")
	ErrValidation    = errors.New("validation")
)

// StepError describes a step that failed with a given error kind and cause,
// carrying enough to populate a RunResult's Failure projection (§3 "Run
// Result"). The engine does not construct it; it classifies the wrapped
// sentinel errors directly. Unwrap exposes both the kind sentinel and the
// cause so errors.Is works against either.
type StepError struct {
	StepID  string
	Kind    error
	Cause   error
	Context map[string]value.Value
}

func (e *StepError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("step %s: %s: %v", e.StepID, e.Kind, e.Cause)
	}
	return fmt.Sprintf("step %s: %s", e.StepID, e.Kind)
}

func (e *StepError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}
