// Package engine implements the Routine Engine (spec §4.6): a sequential
// interpreter over a Routine's steps that orchestrates the renderer
// (pkg/render), the safe evaluator (pkg/eval), the tool registry
// (pkg/toolregistry), the loaded user-function module (pkg/udf), and the
// state store (pkg/runstate) across pause and resume.
//
// The state-machine shape — ready/paused/done, guard before dispatch,
// recovery callback on failure — is spec.md's own §4.6 diagram; there is
// no single teacher file this is copied from, but the ambient pieces (the
// Options-struct constructor, the telemetry trio, sentinel-error
// propagation) follow runtime/agent/runtime/runtime.go's shape.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tracelace/routine/pkg/eval"
	"github.com/tracelace/routine/pkg/loader"
	"github.com/tracelace/routine/pkg/render"
	"github.com/tracelace/routine/pkg/routine"
	"github.com/tracelace/routine/pkg/runstate"
	"github.com/tracelace/routine/pkg/schema"
	"github.com/tracelace/routine/pkg/telemetry"
	"github.com/tracelace/routine/pkg/toolregistry"
	"github.com/tracelace/routine/pkg/udf"
	"github.com/tracelace/routine/pkg/value"
)

// RecoveryFunc is the caller-supplied recovery callback (spec §6
// "Recovery-callback contract"). It is invoked at most once per failing
// step and must not mutate ctxSnapshot or r; it only returns an intention.
// A nil return means "no fix" (abort with failure).
type RecoveryFunc func(ctx context.Context, step *routine.Step, stepErr error, ctxSnapshot map[string]value.Value, r *routine.Routine) *routine.Fix

// Options configures an Engine, following the teacher's Options-struct
// constructor idiom.
type Options struct {
	Logger  telemetry.Logger
	Metrics telemetry.Metrics
	Tracer  telemetry.Tracer
}

// Engine is the sequential interpreter. It is stateless between Run/Resume
// calls; all mutable state lives in the context of one invocation or in
// the state store.
type Engine struct {
	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer
}

// New constructs an Engine, defaulting every telemetry binding to its Noop
// implementation when the caller supplies none.
func New(opts Options) *Engine {
	e := &Engine{logger: opts.Logger, metrics: opts.Metrics, tracer: opts.Tracer}
	if e.logger == nil {
		e.logger = telemetry.NoopLogger{}
	}
	if e.metrics == nil {
		e.metrics = telemetry.NoopMetrics{}
	}
	if e.tracer == nil {
		e.tracer = telemetry.NoopTracer{}
	}
	return e
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// RunOptions bundles the optional collaborators Run accepts (spec §4.6:
// "run(routine_dir, input_data?, tool_registry?, state_store?,
// auto_fix_fn?)").
type RunOptions struct {
	Input        map[string]value.Value
	ToolRegistry *toolregistry.Registry
	StateStore   runstate.Store
	RecoveryFunc RecoveryFunc
	// UDF overrides the user-function module the loader would otherwise
	// resolve (explicit registration, per pkg/udf's doc comment).
	UDF udf.Module
}

// Run loads routineDir and executes it from the first step. It never
// returns a Go error across this boundary (spec §7 policy); every outcome,
// including a malformed routine document, is a *routine.RunResult.
func (e *Engine) Run(ctx context.Context, routineDir string, opts RunOptions) *routine.RunResult {
	runID := NewRunID()

	pkg, err := loader.Load(routineDir, opts.UDF)
	if err != nil {
		e.logger.Error(ctx, "routine load failed", "run_id", runID, "dir", routineDir, "err", err)
		return failRun(runID, "routine-load", err.Error())
	}

	input := opts.Input
	if input == nil {
		input = map[string]value.Value{}
	}
	if pkg.InputSchema != nil {
		if err := pkg.InputSchema.Validate(input); err != nil {
			return failRun(runID, "schema", err.Error())
		}
	}

	runCtx := value.DeepCopyContext(input)

	reg := opts.ToolRegistry
	if reg == nil {
		reg = toolregistry.New()
	}

	result := e.run(ctx, runID, routineDir, pkg, runCtx, 0, reg, opts.StateStore, opts.RecoveryFunc)
	e.metrics.IncCounter("engine.run.total", "status", string(result.Status))
	return result
}

// ResumeOptions bundles the optional collaborators Resume accepts.
type ResumeOptions struct {
	Answers      map[string]value.Value
	ToolRegistry *toolregistry.Registry
	UDF          udf.Module
}

// Resume loads the snapshot for runID from store and continues execution
// after the pending prompt.user step, per spec §4.6's "Resume contract".
func (e *Engine) Resume(ctx context.Context, runID string, store runstate.Store, opts ResumeOptions) *routine.RunResult {
	state, err := store.Load(ctx, runID)
	if err != nil {
		return failRun(runID, "state-not-found", err.Error())
	}
	if state == nil {
		return failRun(runID, "state-not-found", fmt.Sprintf("no snapshot for run %q", runID))
	}

	pkg, err := loader.Load(state.RoutineDir, opts.UDF)
	if err != nil {
		return failRun(runID, "routine-load", err.Error())
	}

	step, idx := pkg.Routine.StepByID(state.PendingStepID)
	if step == nil || step.Kind != routine.StepPromptUser {
		return failRun(runID, "invalid-state", fmt.Sprintf("pending step %q is missing or not a prompt.user step", state.PendingStepID))
	}

	if err := validateAnswers(step.Prompt, opts.Answers); err != nil {
		return failRun(runID, "validation", err.Error())
	}

	runCtx := value.DeepCopyContext(state.Context)
	bindAnswers(runCtx, step, opts.Answers)

	if err := store.Delete(ctx, runID); err != nil {
		e.logger.Warn(ctx, "failed to delete consumed run state", "run_id", runID, "err", err)
	}

	reg := opts.ToolRegistry
	if reg == nil {
		reg = toolregistry.New()
	}

	result := e.run(ctx, runID, state.RoutineDir, pkg, runCtx, idx+1, reg, store, nil)
	e.metrics.IncCounter("engine.run.total", "status", string(result.Status))
	return result
}

func failRun(runID, kind, msg string) *routine.RunResult {
	return &routine.RunResult{
		RunID:  runID,
		Status: routine.StatusFailed,
		Failure: &routine.Failure{
			ErrorKind: kind,
			Message:   msg,
			Context:   map[string]value.Value{},
		},
		Context: map[string]value.Value{},
	}
}

func validateAnswers(p *routine.Prompt, answers map[string]value.Value) error {
	for _, f := range p.Fields {
		v, present := answers[f.Name]
		if !present {
			if f.Requires() {
				return fmt.Errorf("%w: missing required answer %q", routine.ErrValidation, f.Name)
			}
			continue
		}
		if f.Type == routine.PromptFieldSelect {
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("%w: answer %q must be a string for a select field", routine.ErrValidation, f.Name)
			}
			if !contains(f.Options, s) {
				return fmt.Errorf("%w: answer %q=%q is not one of %v", routine.ErrValidation, f.Name, s, f.Options)
			}
		}
	}
	return nil
}

func contains(opts []string, s string) bool {
	for _, o := range opts {
		if o == s {
			return true
		}
	}
	return false
}

// bindAnswers writes answers per spec §4.6's resume contract: "bind the
// answers (into save_as if present, else under a reserved name)".
func bindAnswers(ctx map[string]value.Value, step *routine.Step, answers map[string]value.Value) {
	if step.SaveAs != "" {
		ctx[step.SaveAs] = answers
		return
	}
	ctx["__prompt_"+step.ID] = answers
}

// run drives the ready/dispatch/recover loop from startIndex to either a
// return, a pause, the end of the step list, or an unrecovered failure.
func (e *Engine) run(
	ctx context.Context,
	runID, routineDir string,
	pkg *loader.Package,
	runCtx map[string]value.Value,
	startIndex int,
	reg *toolregistry.Registry,
	store runstate.Store,
	recoveryFn RecoveryFunc,
) *routine.RunResult {
	r := pkg.Routine
	toolNames := r.ToolNames()

	for idx := startIndex; idx < len(r.Steps); idx++ {
		step := &r.Steps[idx]

		spanCtx, span := e.tracer.Start(ctx, "step:"+string(step.Kind))
		e.logger.Debug(spanCtx, "dispatching step", "run_id", runID, "step_id", step.ID, "kind", string(step.Kind))
		stepStart := time.Now()

		if step.When != "" {
			guard, err := eval.Evaluate(spanCtx, step.When, runCtx, pkg.UDF)
			if err != nil {
				span.RecordError(err)
				span.End()
				return failRunAt(runID, step.ID, "condition", fmt.Sprintf("step %s: when: %v", step.ID, err), runCtx)
			}
			if !eval.Truthy(guard) {
				span.End()
				continue
			}
		}

		var (
			result *routine.RunResult
			done   bool
		)

		switch step.Kind {
		case routine.StepToolCall:
			result, done = e.dispatchToolCall(spanCtx, runID, step, toolNames, runCtx, reg, pkg.UDF, r, recoveryFn)
		case routine.StepUDFCall:
			result, done = e.dispatchUDFCall(spanCtx, runID, step, runCtx, pkg.UDF, r, recoveryFn)
		case routine.StepAssert:
			result, done = e.dispatchAssert(spanCtx, runID, step, runCtx, pkg.UDF)
		case routine.StepPromptUser:
			result, done = e.dispatchPrompt(spanCtx, runID, routineDir, step, idx, runCtx, store)
		case routine.StepReturn:
			result, done = e.dispatchReturn(spanCtx, runID, step, runCtx, pkg.UDF, pkg.OutputSchema)
		default:
			result, done = failRun(runID, "routine-load", fmt.Sprintf("step %s: unknown kind %q", step.ID, step.Kind)), true
		}

		e.metrics.IncCounter("engine.step.total", "kind", string(step.Kind))
		e.metrics.RecordTimer("engine.step.duration_seconds", time.Since(stepStart).Seconds(), "kind", string(step.Kind))
		if result != nil && result.Failure != nil {
			span.RecordError(fmt.Errorf("%s", result.Failure.Message))
			e.metrics.IncCounter("engine.step.failures", "kind", string(step.Kind), "error_kind", result.Failure.ErrorKind)
		}
		span.End()

		if done {
			return result
		}
	}

	if err := validateOutput(pkg.OutputSchema, runCtx); err != nil {
		return failRun(runID, "schema", err.Error())
	}
	return &routine.RunResult{RunID: runID, Status: routine.StatusOK, Output: runCtx, Context: runCtx}
}

func (e *Engine) dispatchToolCall(
	ctx context.Context,
	runID string,
	step *routine.Step,
	toolNames map[string]bool,
	runCtx map[string]value.Value,
	reg *toolregistry.Registry,
	mod udf.Module,
	r *routine.Routine,
	recoveryFn RecoveryFunc,
) (*routine.RunResult, bool) {
	attempt := func(args map[string]value.Value) (value.Value, error) {
		if !toolNames[step.Tool] {
			return nil, fmt.Errorf("%w: %q is not declared in routine.tools", routine.ErrUnknownTool, step.Tool)
		}
		rendered, err := render.Value(ctx, args, runCtx, mod)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", routine.ErrRender, err)
		}
		renderedArgs, _ := rendered.(map[string]value.Value)
		return reg.Call(ctx, step.Tool, renderedArgs)
	}

	result, err := attempt(step.Args)
	if err == nil {
		if step.SaveAs != "" {
			runCtx[step.SaveAs] = result
		}
		return nil, false
	}
	return e.recover(ctx, runID, r, step, err, runCtx, recoveryFn, attempt)
}

func (e *Engine) dispatchUDFCall(
	ctx context.Context,
	runID string,
	step *routine.Step,
	runCtx map[string]value.Value,
	mod udf.Module,
	r *routine.Routine,
	recoveryFn RecoveryFunc,
) (*routine.RunResult, bool) {
	attempt := func(args map[string]value.Value) (value.Value, error) {
		fn, ok := mod.Lookup(step.Function)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not defined in the user-function module", routine.ErrUnknownUDF, step.Function)
		}
		rendered, err := render.Value(ctx, args, runCtx, mod)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", routine.ErrRender, err)
		}
		renderedArgs, _ := rendered.(map[string]value.Value)
		result, err := fn(ctx, renderedArgs)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", routine.ErrUDFExec, step.Function, err)
		}
		return result, nil
	}

	result, err := attempt(step.Args)
	if err == nil {
		if step.SaveAs != "" {
			runCtx[step.SaveAs] = result
		}
		return nil, false
	}
	return e.recover(ctx, runID, r, step, err, runCtx, recoveryFn, attempt)
}

func (e *Engine) dispatchAssert(ctx context.Context, runID string, step *routine.Step, runCtx map[string]value.Value, mod udf.Module) (*routine.RunResult, bool) {
	result, err := eval.Evaluate(ctx, step.Check, runCtx, mod)
	if err != nil {
		return failRunAt(runID, step.ID, "assertion", err.Error(), runCtx), true
	}
	if eval.Truthy(result) {
		return nil, false
	}
	msg := step.Message
	if msg == "" {
		msg = fmt.Sprintf("assertion failed: %s", step.Check)
	}
	return failRunAt(runID, step.ID, "assertion", msg, runCtx), true
}

func (e *Engine) dispatchPrompt(ctx context.Context, runID, routineDir string, step *routine.Step, idx int, runCtx map[string]value.Value, store runstate.Store) (*routine.RunResult, bool) {
	if store == nil {
		return failRunAt(runID, step.ID, "state-not-found", "prompt.user step reached but no state store was configured", runCtx), true
	}
	state := &routine.RunState{
		RunID:         runID,
		RoutineDir:    routineDir,
		StepIndex:     idx,
		Context:       value.DeepCopyContext(runCtx),
		PendingStepID: step.ID,
	}
	if err := store.Save(ctx, state); err != nil {
		return failRunAt(runID, step.ID, "state-not-found", fmt.Sprintf("failed to persist pause snapshot: %v", err), runCtx), true
	}
	return &routine.RunResult{RunID: runID, Status: routine.StatusNeedsInput, PendingPrompt: step.ID, Context: runCtx}, true
}

func (e *Engine) dispatchReturn(ctx context.Context, runID string, step *routine.Step, runCtx map[string]value.Value, mod udf.Module, outputSchema *schema.Schema) (*routine.RunResult, bool) {
	out, err := render.Value(ctx, step.Value, runCtx, mod)
	if err != nil {
		return failRunAt(runID, step.ID, "render", err.Error(), runCtx), true
	}
	if err := validateOutput(outputSchema, out); err != nil {
		return failRunAt(runID, step.ID, "schema", err.Error(), runCtx), true
	}
	return &routine.RunResult{RunID: runID, Status: routine.StatusOK, Output: out, Context: runCtx}, true
}

func validateOutput(s *schema.Schema, out value.Value) error {
	if s == nil {
		return nil
	}
	return s.Validate(out)
}

func failRunAt(runID, stepID, kind, msg string, runCtx map[string]value.Value) *routine.RunResult {
	return &routine.RunResult{
		RunID:  runID,
		Status: routine.StatusFailed,
		Failure: &routine.Failure{
			StepID:    stepID,
			ErrorKind: kind,
			Message:   msg,
			Context:   value.DeepCopyContext(runCtx),
		},
		Context: runCtx,
	}
}

// recover applies spec §4.6 step 3's recovery policy: the callback is
// invoked at most once; modify_args retries the same step exactly once
// more (never a second retry, regardless of outcome, per spec §9 treating
// the ceiling as hard); skip binds a default value (nil unless given) and
// proceeds; fail, no callback, or a callback panic/anything-else aborts.
func (e *Engine) recover(
	ctx context.Context,
	runID string,
	r *routine.Routine,
	step *routine.Step,
	stepErr error,
	runCtx map[string]value.Value,
	recoveryFn RecoveryFunc,
	attempt func(args map[string]value.Value) (value.Value, error),
) (*routine.RunResult, bool) {
	if recoveryFn == nil {
		e.metrics.IncCounter("engine.recovery.total", "outcome", "no_callback")
		return failRunAt(runID, step.ID, errorKind(stepErr), stepErr.Error(), runCtx), true
	}

	fix := callRecoveryFunc(ctx, recoveryFn, step, stepErr, value.DeepCopyContext(runCtx), r)
	if fix == nil {
		e.metrics.IncCounter("engine.recovery.total", "outcome", "no_fix")
		return failRunAt(runID, step.ID, errorKind(stepErr), stepErr.Error(), runCtx), true
	}

	switch fix.Strategy {
	case routine.FixModifyArgs:
		result, err := attempt(fix.NewArgs)
		if err != nil {
			e.metrics.IncCounter("engine.recovery.total", "outcome", "modify_args_failed")
			return failRunAt(runID, step.ID, errorKind(err), err.Error(), runCtx), true
		}
		if step.SaveAs != "" {
			runCtx[step.SaveAs] = result
		}
		e.metrics.IncCounter("engine.recovery.total", "outcome", "modify_args")
		return nil, false
	case routine.FixSkip:
		e.metrics.IncCounter("engine.recovery.total", "outcome", "skip")
		if step.SaveAs != "" {
			runCtx[step.SaveAs] = fix.DefaultValue
		}
		return nil, false
	default: // routine.FixFail or anything unrecognized
		e.metrics.IncCounter("engine.recovery.total", "outcome", "fail")
		return failRunAt(runID, step.ID, errorKind(stepErr), stepErr.Error(), runCtx), true
	}
}

// callRecoveryFunc isolates the callback behind a recover() so a panicking
// callback is treated as "no fix" rather than crashing the engine, per
// spec §4.6 step 3a: "If the callback itself raises, treat as no fix."
func callRecoveryFunc(ctx context.Context, fn RecoveryFunc, step *routine.Step, stepErr error, ctxSnapshot map[string]value.Value, r *routine.Routine) (fix *routine.Fix) {
	defer func() {
		if recover() != nil {
			fix = nil
		}
	}()
	return fn(ctx, step, stepErr, ctxSnapshot, r)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, routine.ErrUnknownTool):
		return "unknown-tool"
	case errors.Is(err, routine.ErrUnknownUDF):
		return "unknown-udf"
	case errors.Is(err, routine.ErrSchema):
		return "schema"
	case errors.Is(err, routine.ErrRender):
		return "render"
	case errors.Is(err, routine.ErrToolExec):
		return "tool-exec"
	case errors.Is(err, routine.ErrUDFExec):
		return "udf-exec"
	default:
		return "tool-exec"
	}
}
