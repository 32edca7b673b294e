package routine

import (
	"fmt"

	"github.com/tracelace/routine/pkg/value"
)

// TraceEventType discriminates the three event kinds the compiler
// consumes (spec §3 "Trace Event").
type TraceEventType string

const (
	EventToolCall TraceEventType = "tool_call"
	EventUDFCall  TraceEventType = "udf_call"
	EventApproval TraceEventType = "approval"
)

// App identifies the agent application that produced a trace.
type App struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Mission carries the trace's originating goal and optional input summary,
// the seed for the compiler's result_map (spec §4.7 step 1).
type Mission struct {
	Goal         string                 `json:"goal"`
	InputSummary map[string]value.Value `json:"input_summary,omitempty"`
}

// TraceEvent is one recorded action in an agent execution trace.
type TraceEvent struct {
	Seq      int                     `json:"seq"`
	Type     TraceEventType          `json:"type"`
	Tool     string                  `json:"tool,omitempty"`
	Function string                  `json:"function,omitempty"`
	Prompt   string                  `json:"prompt,omitempty"`
	Args     map[string]value.Value  `json:"args,omitempty"`
	Result   value.Value             `json:"result,omitempty"`
	Answer   value.Value             `json:"answer,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

// Failed reports whether this event recorded a failure (spec §3: "presence
// [of error] marks a failed event").
func (e TraceEvent) Failed() bool {
	return e.Error != ""
}

// Trace is the compiler's input: an ordered log of what an agent did.
type Trace struct {
	Version     string         `json:"version"`
	App         App            `json:"app"`
	Mission     Mission        `json:"mission"`
	Events      []TraceEvent   `json:"events"`
	FinalOutput value.Value    `json:"final_output,omitempty"`
}

// Validate checks the minimal shape the compiler requires: a goal, and
// strictly increasing (not necessarily contiguous) event sequence numbers.
func (t *Trace) Validate() error {
	if t.Mission.Goal == "" {
		return fmt.Errorf("%w: trace has no mission.goal", ErrRoutineLoad)
	}
	last := -1
	for i, e := range t.Events {
		if e.Seq <= last {
			return fmt.Errorf("%w: trace event %d: seq %d is not strictly increasing after %d", ErrRoutineLoad, i, e.Seq, last)
		}
		last = e.Seq
		switch e.Type {
		case EventToolCall, EventUDFCall, EventApproval:
		default:
			return fmt.Errorf("%w: trace event %d: unknown type %q", ErrRoutineLoad, i, e.Type)
		}
	}
	return nil
}
