package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelace/routine/pkg/routine"
	"github.com/tracelace/routine/pkg/value"
)

func TestCompileProducesToolCallStepsWithTemplatizedArgs(t *testing.T) {
	t.Parallel()

	tr := &routine.Trace{
		Mission: routine.Mission{
			Goal:         "Book a flight for Ada",
			InputSummary: map[string]value.Value{"traveler": "Ada"},
		},
		Events: []routine.TraceEvent{
			{
				Seq:    1,
				Type:   routine.EventToolCall,
				Tool:   "flights.search",
				Args:   map[string]value.Value{"name": "Ada"},
				Result: "F1",
			},
			{
				Seq:  2,
				Type: routine.EventToolCall,
				Tool: "flights.book",
				Args: map[string]value.Value{"flight_id": "F1"},
				Result: map[string]value.Value{
					"confirmation": "C1",
				},
			},
		},
		FinalOutput: map[string]value.Value{"confirmation": "C1"},
	}

	result, err := Compile(tr)
	require.NoError(t, err)

	r := result.Routine
	require.Len(t, r.Tools, 2)
	assert.Equal(t, "flights.search", r.Tools[0].Name)
	assert.Equal(t, "flights.book", r.Tools[1].Name)

	require.Len(t, r.Steps, 3)

	s1 := r.Steps[0]
	assert.Equal(t, routine.StepToolCall, s1.Kind)
	assert.Equal(t, "{{ traveler }}", s1.Args["name"])

	s2 := r.Steps[1]
	assert.Equal(t, routine.StepToolCall, s2.Kind)
	// flight_id came from s1's result, so it should be templatized against
	// s1's save_as rather than kept as the literal "F1".
	assert.Equal(t, "{{ "+s1.SaveAs+" }}", s2.Args["flight_id"])

	s3 := r.Steps[2]
	assert.Equal(t, routine.StepReturn, s3.Kind)
	assert.Equal(t, "{{ "+s2.SaveAs+" }}", s3.Value)

	require.Len(t, result.Fixtures, 2)
}

func TestCompileEmptyTraceYieldsSingleReturnStep(t *testing.T) {
	t.Parallel()

	tr := &routine.Trace{Mission: routine.Mission{Goal: "noop"}}
	result, err := Compile(tr)
	require.NoError(t, err)
	require.Len(t, result.Routine.Steps, 1)
	assert.Equal(t, routine.StepReturn, result.Routine.Steps[0].Kind)
}

func TestCompileRejectsInvalidTrace(t *testing.T) {
	t.Parallel()

	_, err := Compile(&routine.Trace{})
	assert.ErrorIs(t, err, routine.ErrRoutineLoad)
}

func TestCompileSynthesizesUDFStubsAndRegistrationTable(t *testing.T) {
	t.Parallel()

	tr := &routine.Trace{
		Mission: routine.Mission{Goal: "transform data"},
		Events: []routine.TraceEvent{
			{
				Seq:      1,
				Type:     routine.EventUDFCall,
				Function: "normalize",
				Args:     map[string]value.Value{"raw": "x"},
				Result:   "X",
			},
		},
	}
	result, err := Compile(tr)
	require.NoError(t, err)

	assert.Contains(t, result.UDFSource, "func normalize(ctx context.Context, args map[string]value.Value) (value.Value, error)")
	assert.Contains(t, result.UDFSource, `"normalize": normalize,`)
	assert.Contains(t, result.UDFSource, "not implemented")
}

func TestCompileApprovalEventProducesPromptStep(t *testing.T) {
	t.Parallel()

	tr := &routine.Trace{
		Mission: routine.Mission{Goal: "confirm purchase"},
		Events: []routine.TraceEvent{
			{Seq: 1, Type: routine.EventApproval, Prompt: "Proceed with purchase?"},
		},
	}
	result, err := Compile(tr)
	require.NoError(t, err)
	require.Len(t, result.Routine.Steps, 1)
	step := result.Routine.Steps[0]
	assert.Equal(t, routine.StepPromptUser, step.Kind)
	require.NotNil(t, step.Prompt)
	assert.Equal(t, "Proceed with purchase?", step.Prompt.Message)
	require.Len(t, step.Prompt.Fields, 1)
	assert.Equal(t, routine.PromptFieldConfirm, step.Prompt.Fields[0].Type)
}

func TestPruneUnreferencedSaveSlots(t *testing.T) {
	t.Parallel()

	tr := &routine.Trace{
		Mission: routine.Mission{Goal: "do something unused"},
		Events: []routine.TraceEvent{
			{Seq: 1, Type: routine.EventToolCall, Tool: "noop", Args: map[string]value.Value{}, Result: "unused"},
		},
		// No final_output and nothing references s1's result, so save_as
		// should be pruned away.
	}
	result, err := Compile(tr)
	require.NoError(t, err)
	require.Len(t, result.Routine.Steps, 1)
	assert.Empty(t, result.Routine.Steps[0].SaveAs)
}

func TestNameSlug(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "book_a_flight_for_ada", NameSlug("Book a flight for Ada!"))
	assert.Equal(t, "a_b", NameSlug("  a--b  "))

	long := ""
	for i := 0; i < 100; i++ {
		long += "a"
	}
	slug := NameSlug(long)
	assert.LessOrEqual(t, len(slug), 60)
}
