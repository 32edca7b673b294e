// Package routine defines the core data model shared by every component of
// the system: the Routine document, its Step variants, the Trace a
// compiler consumes, and the Run State / Run Result pause/resume shapes.
// It mirrors the teacher's runtime/agent/run package's role (plain data
// types plus the Status/Phase enum idiom, grounded on
// runtime/agent/run/run.go) without importing any of the engine,
// evaluator, or renderer packages that operate on these types.
package routine

import (
	"fmt"

	"github.com/tracelace/routine/pkg/schema"
)

// Tool is a declared external callable a routine's tool.call steps may
// reference (spec §3 "Routine" / "tools").
type Tool struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	ArgsSchema  map[string]any `yaml:"args_schema,omitempty" json:"args_schema,omitempty"`
	ResultSchema map[string]any `yaml:"result_schema,omitempty" json:"result_schema,omitempty"`
}

// Routine is the full document spec §3 describes: an ordered list of tool
// declarations and an ordered, non-empty list of steps.
type Routine struct {
	Version     string         `yaml:"version" json:"version"`
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Tools       []Tool         `yaml:"tools,omitempty" json:"tools,omitempty"`
	InputSchema map[string]any `yaml:"input_schema,omitempty" json:"input_schema,omitempty"`
	OutputSchema map[string]any `yaml:"output_schema,omitempty" json:"output_schema,omitempty"`
	Steps       []Step         `yaml:"steps" json:"steps"`
}

// Normalize fills in the version default spec §3 specifies ("defaults to
// '1'"). Callers that decode a document directly should call this once
// before Validate.
func (r *Routine) Normalize() {
	if r.Version == "" {
		r.Version = "1"
	}
}

// ToolNames returns the set of declared tool names, used by the engine's
// dispatch-time re-validation (SPEC_FULL C.3) and by the loader's static
// validation (SPEC_FULL C.4).
func (r *Routine) ToolNames() map[string]bool {
	out := make(map[string]bool, len(r.Tools))
	for _, t := range r.Tools {
		out[t.Name] = true
	}
	return out
}

// Validate checks the structural invariants of spec §3: a non-empty name,
// at least one step, unique step ids, and per-step shape (Step.Validate).
// It does not check tool/udf references against an external registry or
// module; the engine checks both at dispatch time, and loader.Validate
// checks that every tool.call names a declared tool.
func (r *Routine) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: routine has no name", ErrRoutineLoad)
	}
	if len(r.Steps) == 0 {
		return fmt.Errorf("%w: routine %q has no steps", ErrRoutineLoad, r.Name)
	}
	seen := make(map[string]bool, len(r.Steps))
	for i := range r.Steps {
		s := &r.Steps[i]
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: routine %q: duplicate step id %q", ErrRoutineLoad, r.Name, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// CompileSchemas compiles InputSchema/OutputSchema into *schema.Schema,
// returning nil for either when absent. Kept separate from Validate so
// loading a routine never requires schema compilation when none is used.
func (r *Routine) CompileSchemas() (input, output *schema.Schema, err error) {
	if r.InputSchema != nil {
		input, err = schema.Compile(r.InputSchema)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: input_schema: %w", ErrRoutineLoad, err)
		}
	}
	if r.OutputSchema != nil {
		output, err = schema.Compile(r.OutputSchema)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: output_schema: %w", ErrRoutineLoad, err)
		}
	}
	return input, output, nil
}

// StepByID finds a step by id, used by resume validation.
func (r *Routine) StepByID(id string) (*Step, int) {
	for i := range r.Steps {
		if r.Steps[i].ID == id {
			return &r.Steps[i], i
		}
	}
	return nil, -1
}
