// Package compiler implements the Trace Compiler (spec §4.7): a
// deterministic translation from a recorded agent execution Trace into a
// Routine document, a stub user-function source listing, and a fixtures
// mapping regression tests can read back (via loader.LoadFixture).
//
// There is no single teacher file this algorithm is grounded on — it is
// spec.md's own §4.7 procedure — but the result_map keying on
// value.Canonical is the Open-Question resolution SPEC_FULL C.1 records,
// and the generated user-function stubs follow the teacher's own
// generated-code convention of a header comment plus one function per
// stub (runtime/agent/model/json.go's generated accessors are the closest
// analogue of "small generated Go source, one declaration per concept").
package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tracelace/routine/pkg/routine"
	"github.com/tracelace/routine/pkg/schema"
	"github.com/tracelace/routine/pkg/value"
)

// Result is the compiler's output: a Routine ready to run once its
// udf.call steps are backed by real implementations of UDFSource's stubs,
// plus Fixtures for regression tests.
type Result struct {
	Routine   *routine.Routine
	UDFSource string
	Fixtures  map[string]value.Value
}

// Compile translates trace into a Result. Per spec §4.7's "Failure
// modes", the only way Compile fails is a malformed trace
// (routine.ErrRoutineLoad); otherwise it is total — compiling an
// empty-event trace yields a routine with zero... except spec §3 requires
// a routine's steps to be non-empty, so an empty-event, no-final-output
// trace compiles to a single no-op return step rather than violating that
// invariant (see Compile's closing step).
func Compile(trace *routine.Trace) (*Result, error) {
	if err := trace.Validate(); err != nil {
		return nil, err
	}

	c := &compilation{
		resultMap: make(map[string]string, len(trace.Mission.InputSummary)),
		tools:     make(map[string]bool),
		udfs:      make(map[string]bool),
		fixtures:  make(map[string]value.Value),
	}
	for k, v := range trace.Mission.InputSummary {
		c.resultMap[value.Canonical(v)] = k
	}

	for _, ev := range trace.Events {
		c.stepSeq++
		stepID := fmt.Sprintf("s%d", c.stepSeq)
		switch ev.Type {
		case routine.EventToolCall:
			c.compileToolCall(stepID, ev)
		case routine.EventUDFCall:
			c.compileUDFCall(stepID, ev)
		case routine.EventApproval:
			c.compileApproval(stepID, ev)
		}
	}

	if trace.FinalOutput != nil {
		c.stepSeq++
		stepID := fmt.Sprintf("s%d", c.stepSeq)
		val := value.Value(trace.FinalOutput)
		if name, ok := c.resultMap[value.Canonical(trace.FinalOutput)]; ok {
			val = fmt.Sprintf("{{ %s }}", name)
		}
		c.steps = append(c.steps, routine.Step{ID: stepID, Kind: routine.StepReturn, Value: val})
	}

	if len(c.steps) == 0 {
		// A Routine's steps must be non-empty (spec §3); an empty trace
		// with no final_output still yields a well-formed routine per
		// spec's compiler totality property (testable property 9).
		c.steps = append(c.steps, routine.Step{ID: "s1", Kind: routine.StepReturn, Value: nil})
	}

	c.pruneUnreferencedSaveSlots()

	r := &routine.Routine{
		Version: "1",
		Name:    trace.Mission.Goal,
		Tools:   c.toolDecls,
		Steps:   c.steps,
	}
	if len(trace.Mission.InputSummary) > 0 {
		r.InputSchema = schema.Infer(trace.Mission.InputSummary)
	}
	if trace.FinalOutput != nil {
		r.OutputSchema = schema.Infer(trace.FinalOutput)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: compiled routine is invalid: %w", routine.ErrRoutineLoad, err)
	}

	return &Result{
		Routine:   r,
		UDFSource: renderUDFSource(c.udfStubs),
		Fixtures:  c.fixtures,
	}, nil
}

// NameSlug derives a filesystem-friendly slug from a mission goal: lowercase,
// each run of non-alphanumerics mapped to a single underscore, surrounding
// underscores trimmed, truncated to 60 characters (spec §4.7 step 6).
func NameSlug(goal string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(goal) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	slug := strings.Trim(b.String(), "_")
	if len(slug) > 60 {
		slug = strings.Trim(slug[:60], "_")
	}
	return slug
}

type udfStub struct {
	name     string
	argNames []string
	resultTy string
}

type compilation struct {
	resultMap map[string]string // value.Canonical(v) -> save-slot name
	stepSeq   int
	steps     []routine.Step
	toolDecls []routine.Tool
	tools     map[string]bool
	udfs      map[string]bool
	udfStubs  []udfStub
	fixtures  map[string]value.Value
}

func (c *compilation) compileToolCall(stepID string, ev routine.TraceEvent) {
	if !c.tools[ev.Tool] {
		c.tools[ev.Tool] = true
		c.toolDecls = append(c.toolDecls, routine.Tool{
			Name:       ev.Tool,
			ArgsSchema: schema.Infer(ev.Args),
		})
	}
	saveAs := "result_" + stepID
	c.steps = append(c.steps, routine.Step{
		ID:     stepID,
		Kind:   routine.StepToolCall,
		Tool:   ev.Tool,
		Args:   c.templatize(ev.Args),
		SaveAs: saveAs,
	})
	c.record(ev.Result, saveAs)
	c.fixtures[stepID+"_result"] = ev.Result
}

func (c *compilation) compileUDFCall(stepID string, ev routine.TraceEvent) {
	if !c.udfs[ev.Function] {
		c.udfs[ev.Function] = true
		c.udfStubs = append(c.udfStubs, udfStub{
			name:     ev.Function,
			argNames: sortedKeys(ev.Args),
			resultTy: goType(ev.Result),
		})
	}
	saveAs := "result_" + stepID
	c.steps = append(c.steps, routine.Step{
		ID:       stepID,
		Kind:     routine.StepUDFCall,
		Function: ev.Function,
		Args:     c.templatize(ev.Args),
		SaveAs:   saveAs,
	})
	c.record(ev.Result, saveAs)
	c.fixtures[stepID+"_result"] = ev.Result
}

func (c *compilation) compileApproval(stepID string, ev routine.TraceEvent) {
	c.steps = append(c.steps, routine.Step{
		ID:   stepID,
		Kind: routine.StepPromptUser,
		Prompt: &routine.Prompt{
			Message: ev.Prompt,
			Fields: []routine.PromptField{
				{Name: "confirmed", Label: ev.Prompt, Type: routine.PromptFieldConfirm},
			},
		},
	})
}

// record stores (result, saveAs) in the data-flow map, last-write-wins
// for structurally-equal results (spec §4.7 step 2).
func (c *compilation) record(result value.Value, saveAs string) {
	c.resultMap[value.Canonical(result)] = saveAs
}

// templatize replaces any value structurally equal to a prior recorded
// result or input field with a {{ name }} reference, recursing into
// nested composites so a reference buried in a list or mapping is still
// recovered (an enrichment of spec §4.7's per-argument wording, not a
// narrowing of it).
func (c *compilation) templatize(args map[string]value.Value) map[string]value.Value {
	out := make(map[string]value.Value, len(args))
	for k, v := range args {
		out[k] = c.templatizeValue(v)
	}
	return out
}

func (c *compilation) templatizeValue(v value.Value) value.Value {
	if name, ok := c.resultMap[value.Canonical(v)]; ok {
		return fmt.Sprintf("{{ %s }}", name)
	}
	switch t := v.(type) {
	case []value.Value:
		out := make([]value.Value, len(t))
		for i, e := range t {
			out[i] = c.templatizeValue(e)
		}
		return out
	case map[string]value.Value:
		out := make(map[string]value.Value, len(t))
		for k, e := range t {
			out[k] = c.templatizeValue(e)
		}
		return out
	default:
		return v
	}
}

// pruneUnreferencedSaveSlots implements spec §9's suggested future pass
// ("A future pass could prune unreferenced save-slots"): any save_as whose
// name is never referenced by a later step's args or return value (as a
// `{{ name }}` placeholder) nor mentioned in a later step's when or check
// expression is cleared, since a step can still run for its side effect without
// occupying a context slot nothing reads.
func (c *compilation) pruneUnreferencedSaveSlots() {
	for i := range c.steps {
		name := c.steps[i].SaveAs
		if name == "" {
			continue
		}
		ref := fmt.Sprintf("{{ %s }}", name)
		referenced := false
		for j := i + 1; j < len(c.steps) && !referenced; j++ {
			s := &c.steps[j]
			referenced = valueReferences(s.Args, ref) || valueReferences(s.Value, ref) ||
				strings.Contains(s.When, name) || strings.Contains(s.Check, name)
		}
		if !referenced {
			c.steps[i].SaveAs = ""
		}
	}
}

func valueReferences(v value.Value, ref string) bool {
	switch t := v.(type) {
	case string:
		return strings.Contains(t, ref)
	case []value.Value:
		for _, e := range t {
			if valueReferences(e, ref) {
				return true
			}
		}
	case map[string]value.Value:
		for _, e := range t {
			if valueReferences(e, ref) {
				return true
			}
		}
	}
	return false
}

func sortedKeys(m map[string]value.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func goType(v value.Value) string {
	switch value.Kind(v) {
	case "boolean":
		return "bool"
	case "integer":
		return "int64"
	case "number":
		return "float64"
	case "string":
		return "string"
	case "array":
		return "[]value.Value"
	case "object":
		return "map[string]value.Value"
	default:
		return "value.Value"
	}
}

// renderUDFSource synthesizes the user-function source listing spec
// §4.7 step 5 calls for: a file preamble plus one "not implemented" stub
// per distinct function name observed in the trace's udf_call events.
func renderUDFSource(stubs []udfStub) string {
	var b strings.Builder
	b.WriteString("// Code generated by the routine trace compiler. Fill in each stub's\n")
	b.WriteString("// body before running the compiled routine; every udf.call step in\n")
	b.WriteString("// the generated routine.yaml resolves against one of these names.\n")
	b.WriteString("package udf\n\n")
	if len(stubs) > 0 {
		b.WriteString("import (\n\t\"context\"\n\t\"errors\"\n\n\t\"github.com/tracelace/routine/pkg/value\"\n)\n\n")
	}
	for _, s := range stubs {
		fmt.Fprintf(&b, "// %s returns a %s. Parameters observed in the trace: %s.\n", s.name, s.resultTy, strings.Join(s.argNames, ", "))
		fmt.Fprintf(&b, "func %s(ctx context.Context, args map[string]value.Value) (value.Value, error) {\n", s.name)
		b.WriteString("\treturn nil, errors.New(\"not implemented\")\n")
		b.WriteString("}\n\n")
	}
	if len(stubs) > 0 {
		b.WriteString("// Functions is the registration table loader.Load expects when a\n")
		b.WriteString("// udf module is supplied explicitly rather than via a plugin.\n")
		b.WriteString("var Functions = map[string]func(ctx context.Context, args map[string]value.Value) (value.Value, error){\n")
		for _, s := range stubs {
			fmt.Fprintf(&b, "\t%q: %s,\n", s.name, s.name)
		}
		b.WriteString("}\n")
	}
	return b.String()
}
