package routine

import "github.com/tracelace/routine/pkg/value"

// RunStatus is the terminal (or suspended) status of one engine invocation,
// following the teacher's string-typed status-enum idiom
// (runtime/agent/run/run.go's Status/Phase).
type RunStatus string

const (
	StatusOK         RunStatus = "ok"
	StatusFailed     RunStatus = "failed"
	StatusNeedsInput RunStatus = "needs_input"
)

// RunState is the pause snapshot persisted by the State Store (spec §3
// "Run State"). StepIndex is the 0-based index of the paused prompt.user
// step itself, not the step after it; resume continues at StepIndex+1.
type RunState struct {
	RunID         string                 `yaml:"run_id" json:"run_id"`
	RoutineDir    string                 `yaml:"routine_dir" json:"routine_dir"`
	StepIndex     int                    `yaml:"step_index" json:"step_index"`
	Context       map[string]value.Value `yaml:"context" json:"context"`
	PendingStepID string                 `yaml:"pending_step_id" json:"pending_step_id"`
}

// Failure is the RunResult projection of a step-level failure (spec §3
// "Run Result" / §7 "Failures carry the originating step.id and a context
// snapshot").
type Failure struct {
	StepID    string                 `json:"step_id"`
	ErrorKind string                 `json:"error_kind"`
	Message   string                 `json:"message"`
	Context   map[string]value.Value `json:"context"`
}

// RunResult is the engine's sole outward-facing return type; spec §7's
// policy is that the engine never throws across its public boundary, so
// every Run or Resume call returns one of these instead of an error.
type RunResult struct {
	RunID          string                 `json:"run_id"`
	Status         RunStatus              `json:"status"`
	Output         value.Value            `json:"output,omitempty"`
	Failure        *Failure               `json:"failure,omitempty"`
	PendingPrompt  string                 `json:"pending_prompt,omitempty"`
	Context        map[string]value.Value `json:"context"`
}
