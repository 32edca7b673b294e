package routine

import (
	"fmt"

	"github.com/tracelace/routine/pkg/value"
)

// StepKind discriminates the five step variants (spec §3 "Step").
type StepKind string

const (
	StepToolCall   StepKind = "tool.call"
	StepUDFCall    StepKind = "udf.call"
	StepAssert     StepKind = "assert"
	StepPromptUser StepKind = "prompt.user"
	StepReturn     StepKind = "return"
)

// Step is a tagged record: exactly one of five variants. Rather than a
// Go sum type (interfaces add ceremony text/yaml round-tripping doesn't
// need here), every variant's fields live on one struct and Kind picks
// which are meaningful — mirroring how routine.yaml's own encoding has no
// per-variant wire shape beyond the selected fields being populated.
type Step struct {
	ID          string   `yaml:"id" json:"id"`
	Kind        StepKind `yaml:"kind" json:"kind"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	When        string   `yaml:"when,omitempty" json:"when,omitempty"`

	// tool.call / udf.call
	Tool     string                 `yaml:"tool,omitempty" json:"tool,omitempty"`
	Function string                 `yaml:"function,omitempty" json:"function,omitempty"`
	Args     map[string]value.Value `yaml:"args,omitempty" json:"args,omitempty"`
	SaveAs   string                 `yaml:"save_as,omitempty" json:"save_as,omitempty"`

	// assert
	Check   string `yaml:"check,omitempty" json:"check,omitempty"`
	Message string `yaml:"message,omitempty" json:"message,omitempty"`

	// prompt.user
	Prompt *Prompt `yaml:"prompt,omitempty" json:"prompt,omitempty"`

	// return
	Value value.Value `yaml:"value,omitempty" json:"value,omitempty"`
}

// Prompt is the message and field set a prompt.user step presents.
type Prompt struct {
	Message string        `yaml:"message" json:"message"`
	Fields  []PromptField `yaml:"fields" json:"fields"`
}

// PromptFieldType enumerates the field kinds spec §3 allows.
type PromptFieldType string

const (
	PromptFieldText    PromptFieldType = "text"
	PromptFieldNumber  PromptFieldType = "number"
	PromptFieldConfirm PromptFieldType = "confirm"
	PromptFieldSelect  PromptFieldType = "select"
)

// PromptField describes one answerable field of a prompt.user step.
// Required defaults to true when absent from the document; use Requires
// rather than reading the field directly.
type PromptField struct {
	Name     string          `yaml:"name" json:"name"`
	Label    string          `yaml:"label" json:"label"`
	Type     PromptFieldType `yaml:"type" json:"type"`
	Required *bool           `yaml:"required,omitempty" json:"required,omitempty"`
	Default  value.Value     `yaml:"default,omitempty" json:"default,omitempty"`
	Options  []string        `yaml:"options,omitempty" json:"options,omitempty"`
}

// Requires reports whether this field must be answered, applying the
// default-true rule documented in spec §3.
func (f PromptField) Requires() bool {
	return f.Required == nil || *f.Required
}

// Validate checks that exactly the fields relevant to s.Kind are present,
// per the required/optional columns of spec §3's Step table.
func (s *Step) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: step has no id", ErrRoutineLoad)
	}
	switch s.Kind {
	case StepToolCall:
		if s.Tool == "" {
			return fmt.Errorf("%w: step %s: tool.call requires tool", ErrRoutineLoad, s.ID)
		}
		if s.Args == nil {
			return fmt.Errorf("%w: step %s: tool.call requires args", ErrRoutineLoad, s.ID)
		}
	case StepUDFCall:
		if s.Function == "" {
			return fmt.Errorf("%w: step %s: udf.call requires function", ErrRoutineLoad, s.ID)
		}
		if s.Args == nil {
			return fmt.Errorf("%w: step %s: udf.call requires args", ErrRoutineLoad, s.ID)
		}
	case StepAssert:
		if s.Check == "" {
			return fmt.Errorf("%w: step %s: assert requires check", ErrRoutineLoad, s.ID)
		}
	case StepPromptUser:
		if s.Prompt == nil {
			return fmt.Errorf("%w: step %s: prompt.user requires prompt", ErrRoutineLoad, s.ID)
		}
		for _, f := range s.Prompt.Fields {
			if f.Type == PromptFieldSelect && len(f.Options) == 0 {
				return fmt.Errorf("%w: step %s: select field %q requires options", ErrRoutineLoad, s.ID, f.Name)
			}
		}
	case StepReturn:
		// value may legitimately be nil/absent; nothing to require.
	default:
		return fmt.Errorf("%w: step %s: unknown kind %q", ErrRoutineLoad, s.ID, s.Kind)
	}
	return nil
}

// FixStrategy enumerates the recovery callback's recognized intentions
// (spec §6 "Recovery-callback contract").
type FixStrategy string

const (
	FixModifyArgs FixStrategy = "modify_args"
	FixSkip       FixStrategy = "skip"
	FixFail       FixStrategy = "fail"
)

// Fix is the recovery callback's return value, expressed as the sum type
// spec §9's Design Notes call for ("ModifyArgs{new_args}, Skip{default_value?},
// Fail") rather than a duck-typed map.
type Fix struct {
	Strategy     FixStrategy
	NewArgs      map[string]value.Value
	DefaultValue value.Value
}
