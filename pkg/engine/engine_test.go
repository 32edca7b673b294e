package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelace/routine/pkg/routine"
	"github.com/tracelace/routine/pkg/runstate"
	"github.com/tracelace/routine/pkg/telemetry"
	"github.com/tracelace/routine/pkg/toolregistry"
	"github.com/tracelace/routine/pkg/value"
)

// recordingMetrics captures every call made through it, so tests can assert
// the engine actually drives the telemetry.Metrics binding rather than just
// logs and spans.
type recordingMetrics struct {
	counters []string
	timers   []string
}

func (m *recordingMetrics) IncCounter(name string, _ ...string) {
	m.counters = append(m.counters, name)
}

func (m *recordingMetrics) RecordTimer(name string, _ float64, _ ...string) {
	m.timers = append(m.timers, name)
}

func (m *recordingMetrics) RecordGauge(string, float64, ...string) {}

var _ telemetry.Metrics = (*recordingMetrics)(nil)

func writeRoutine(t *testing.T, yamlDoc string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "routine.yaml"), []byte(yamlDoc), 0o644))
	return dir
}

func TestRunExecutesToolCallThenReturn(t *testing.T) {
	t.Parallel()

	dir := writeRoutine(t, `
name: greet
tools:
  - name: say
steps:
  - id: s1
    kind: tool.call
    tool: say
    args:
      name: "{{ who }}"
    save_as: r1
  - id: s2
    kind: return
    value: "{{ r1 }}"
`)

	reg := toolregistry.New()
	reg.Register("say", func(_ context.Context, args map[string]value.Value) (value.Value, error) {
		return "hello " + args["name"].(string), nil
	}, nil, nil)

	e := New(Options{})
	result := e.Run(context.Background(), dir, RunOptions{
		Input:        map[string]value.Value{"who": "Ada"},
		ToolRegistry: reg,
	})

	require.Equal(t, routine.StatusOK, result.Status)
	assert.Equal(t, "hello Ada", result.Output)
}

func TestRunFailsOnUndeclaredTool(t *testing.T) {
	t.Parallel()

	dir := writeRoutine(t, `
name: bad
steps:
  - id: s1
    kind: tool.call
    tool: missing
    args: {}
  - id: s2
    kind: return
`)

	e := New(Options{})
	result := e.Run(context.Background(), dir, RunOptions{ToolRegistry: toolregistry.New()})

	require.Equal(t, routine.StatusFailed, result.Status)
	require.NotNil(t, result.Failure)
	assert.Equal(t, "s1", result.Failure.StepID)
}

func TestRunAssertFailureReportsMessage(t *testing.T) {
	t.Parallel()

	dir := writeRoutine(t, `
name: checked
steps:
  - id: s1
    kind: assert
    check: "1 == 2"
    message: "one is not two"
  - id: s2
    kind: return
`)

	e := New(Options{})
	result := e.Run(context.Background(), dir, RunOptions{})

	require.Equal(t, routine.StatusFailed, result.Status)
	assert.Equal(t, "one is not two", result.Failure.Message)
}

func TestRunWhenGuardSkipsStep(t *testing.T) {
	t.Parallel()

	dir := writeRoutine(t, `
name: guarded
steps:
  - id: s1
    kind: assert
    when: "false"
    check: "1 == 2"
  - id: s2
    kind: return
    value: "done"
`)

	e := New(Options{})
	result := e.Run(context.Background(), dir, RunOptions{})

	require.Equal(t, routine.StatusOK, result.Status)
	assert.Equal(t, "done", result.Output)
}

func TestRunPausesAtPromptAndResumeContinues(t *testing.T) {
	t.Parallel()

	dir := writeRoutine(t, `
name: ask
steps:
  - id: s1
    kind: prompt.user
    save_as: answer
    prompt:
      message: "Proceed?"
      fields:
        - name: proceed
          label: Proceed?
          type: confirm
  - id: s2
    kind: return
    value: "{{ answer }}"
`)

	store := runstate.NewEphemeral()
	e := New(Options{})

	result := e.Run(context.Background(), dir, RunOptions{StateStore: store})
	require.Equal(t, routine.StatusNeedsInput, result.Status)
	assert.Equal(t, "s1", result.PendingPrompt)

	resumed := e.Resume(context.Background(), result.RunID, store, ResumeOptions{
		Answers: map[string]value.Value{"proceed": true},
	})
	require.Equal(t, routine.StatusOK, resumed.Status)

	out, ok := resumed.Output.(map[string]value.Value)
	require.True(t, ok)
	assert.Equal(t, true, out["proceed"])
}

func TestResumeRejectsMissingRequiredAnswer(t *testing.T) {
	t.Parallel()

	dir := writeRoutine(t, `
name: ask
steps:
  - id: s1
    kind: prompt.user
    prompt:
      message: "Name?"
      fields:
        - name: name
          label: Name
          type: text
  - id: s2
    kind: return
`)

	store := runstate.NewEphemeral()
	e := New(Options{})

	result := e.Run(context.Background(), dir, RunOptions{StateStore: store})
	require.Equal(t, routine.StatusNeedsInput, result.Status)

	resumed := e.Resume(context.Background(), result.RunID, store, ResumeOptions{Answers: map[string]value.Value{}})
	assert.Equal(t, routine.StatusFailed, resumed.Status)
}

func TestResumeUnknownRunIDFails(t *testing.T) {
	t.Parallel()

	store := runstate.NewEphemeral()
	e := New(Options{})
	result := e.Resume(context.Background(), "nope", store, ResumeOptions{})
	assert.Equal(t, routine.StatusFailed, result.Status)
}

func TestRunRecoveryModifyArgsRetriesOnce(t *testing.T) {
	t.Parallel()

	dir := writeRoutine(t, `
name: flaky
tools:
  - name: divide
steps:
  - id: s1
    kind: tool.call
    tool: divide
    args:
      n: 0
    save_as: r1
  - id: s2
    kind: return
    value: "{{ r1 }}"
`)

	reg := toolregistry.New()
	reg.Register("divide", func(_ context.Context, args map[string]value.Value) (value.Value, error) {
		n, _ := args["n"].(int)
		if n == 0 {
			return nil, assertErr("division by zero")
		}
		return 100 / n, nil
	}, nil, nil)

	recovery := func(_ context.Context, step *routine.Step, _ error, _ map[string]value.Value, _ *routine.Routine) *routine.Fix {
		return &routine.Fix{Strategy: routine.FixModifyArgs, NewArgs: map[string]value.Value{"n": 10}}
	}

	e := New(Options{})
	result := e.Run(context.Background(), dir, RunOptions{ToolRegistry: reg, RecoveryFunc: recovery})

	require.Equal(t, routine.StatusOK, result.Status)
	assert.Equal(t, 10, result.Output)
}

func TestRunRecoverySkipBindsDefaultValue(t *testing.T) {
	t.Parallel()

	dir := writeRoutine(t, `
name: flaky
tools:
  - name: boom
steps:
  - id: s1
    kind: tool.call
    tool: boom
    args: {}
    save_as: r1
  - id: s2
    kind: return
    value: "{{ r1 }}"
`)

	reg := toolregistry.New()
	reg.Register("boom", func(_ context.Context, _ map[string]value.Value) (value.Value, error) {
		return nil, assertErr("boom")
	}, nil, nil)

	recovery := func(_ context.Context, _ *routine.Step, _ error, _ map[string]value.Value, _ *routine.Routine) *routine.Fix {
		return &routine.Fix{Strategy: routine.FixSkip, DefaultValue: "fallback"}
	}

	e := New(Options{})
	result := e.Run(context.Background(), dir, RunOptions{ToolRegistry: reg, RecoveryFunc: recovery})

	require.Equal(t, routine.StatusOK, result.Status)
	assert.Equal(t, "fallback", result.Output)
}

func TestRunRecoveryFailAbortsRun(t *testing.T) {
	t.Parallel()

	dir := writeRoutine(t, `
name: flaky
tools:
  - name: boom
steps:
  - id: s1
    kind: tool.call
    tool: boom
    args: {}
  - id: s2
    kind: return
`)

	reg := toolregistry.New()
	reg.Register("boom", func(_ context.Context, _ map[string]value.Value) (value.Value, error) {
		return nil, assertErr("boom")
	}, nil, nil)

	recovery := func(_ context.Context, _ *routine.Step, _ error, _ map[string]value.Value, _ *routine.Routine) *routine.Fix {
		return &routine.Fix{Strategy: routine.FixFail}
	}

	e := New(Options{})
	result := e.Run(context.Background(), dir, RunOptions{ToolRegistry: reg, RecoveryFunc: recovery})
	assert.Equal(t, routine.StatusFailed, result.Status)
}

func TestRunRecoveryCallbackPanicTreatedAsNoFix(t *testing.T) {
	t.Parallel()

	dir := writeRoutine(t, `
name: flaky
tools:
  - name: boom
steps:
  - id: s1
    kind: tool.call
    tool: boom
    args: {}
  - id: s2
    kind: return
`)

	reg := toolregistry.New()
	reg.Register("boom", func(_ context.Context, _ map[string]value.Value) (value.Value, error) {
		return nil, assertErr("boom")
	}, nil, nil)

	recovery := func(_ context.Context, _ *routine.Step, _ error, _ map[string]value.Value, _ *routine.Routine) *routine.Fix {
		panic("callback exploded")
	}

	e := New(Options{})
	result := e.Run(context.Background(), dir, RunOptions{ToolRegistry: reg, RecoveryFunc: recovery})
	assert.Equal(t, routine.StatusFailed, result.Status)
}

func TestRunMissingRoutineFileFails(t *testing.T) {
	t.Parallel()

	e := New(Options{})
	result := e.Run(context.Background(), t.TempDir(), RunOptions{})
	assert.Equal(t, routine.StatusFailed, result.Status)
}

func TestRunEmitsStepAndRunMetrics(t *testing.T) {
	t.Parallel()

	dir := writeRoutine(t, `
name: greet
tools:
  - name: say
steps:
  - id: s1
    kind: tool.call
    tool: say
    args:
      name: "{{ who }}"
    save_as: r1
  - id: s2
    kind: return
    value: "{{ r1 }}"
`)

	reg := toolregistry.New()
	reg.Register("say", func(_ context.Context, args map[string]value.Value) (value.Value, error) {
		return "hello " + args["name"].(string), nil
	}, nil, nil)

	metrics := &recordingMetrics{}
	e := New(Options{Metrics: metrics})
	result := e.Run(context.Background(), dir, RunOptions{
		Input:        map[string]value.Value{"who": "Ada"},
		ToolRegistry: reg,
	})

	require.Equal(t, routine.StatusOK, result.Status)
	assert.Contains(t, metrics.counters, "engine.run.total")
	assert.Equal(t, 2, countOccurrences(metrics.counters, "engine.step.total"))
	assert.Equal(t, 2, countOccurrences(metrics.timers, "engine.step.duration_seconds"))
	assert.NotContains(t, metrics.counters, "engine.step.failures")
}

func TestRunRecoveryEmitsRecoveryMetric(t *testing.T) {
	t.Parallel()

	dir := writeRoutine(t, `
name: greet
tools:
  - name: say
steps:
  - id: s1
    kind: tool.call
    tool: say
    args: {}
    save_as: r1
  - id: s2
    kind: return
    value: "{{ r1 }}"
`)

	reg := toolregistry.New()
	reg.Register("say", func(_ context.Context, _ map[string]value.Value) (value.Value, error) {
		return nil, assertErr("boom")
	}, nil, nil)

	recovery := func(_ context.Context, _ *routine.Step, _ error, _ map[string]value.Value, _ *routine.Routine) *routine.Fix {
		return &routine.Fix{Strategy: routine.FixSkip, DefaultValue: "fallback"}
	}

	metrics := &recordingMetrics{}
	e := New(Options{Metrics: metrics})
	result := e.Run(context.Background(), dir, RunOptions{ToolRegistry: reg, RecoveryFunc: recovery})

	require.Equal(t, routine.StatusOK, result.Status)
	assert.Contains(t, metrics.counters, "engine.recovery.total")
}

func countOccurrences(items []string, target string) int {
	n := 0
	for _, item := range items {
		if item == target {
			n++
		}
	}
	return n
}

type simpleError string

func (e simpleError) Error() string { return string(e) }

func assertErr(msg string) error { return simpleError(msg) }
