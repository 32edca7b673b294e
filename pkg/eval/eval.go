// Package eval implements the Safe Evaluator (spec §4.2): a restricted
// expression language used for step guards (`when`) and assertions
// (`assert.check`). It compiles and runs expressions with
// github.com/expr-lang/expr (grounded on getmockd-mockd's
// pkg/stateful/executor.go, which solves the identical "evaluate a small
// expression against an accumulating context map" problem with the same
// library and the same compile/run split).
//
// The grammar spec §4.2 calls out as unsupported — assignment, statements,
// lambdas/comprehensions, imports — has no first-class "disable" switch in
// expr-lang beyond builtins, so two defenses apply: expr.DisableAllBuiltins
// removes every closure-taking builtin (all/any/map/filter/reduce/find,
// the comprehension surface), and a source-level guard rejects `;`
// (statement sequencing) and the `let` keyword (local variable
// declaration) before compilation ever sees them.
package eval

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/expr-lang/expr"

	"github.com/tracelace/routine/pkg/udf"
	"github.com/tracelace/routine/pkg/value"
)

// ErrUnsupported is returned for expressions using grammar spec §4.2
// excludes (statements, variable declarations, lambdas via builtins).
var ErrUnsupported = errors.New("eval: unsupported expression")

var (
	reStatementSeparator = regexp.MustCompile(`;`)
	reLetKeyword         = regexp.MustCompile(`(?:^|[^A-Za-z0-9_])let(?:$|[^A-Za-z0-9_])`)
)

// Evaluate compiles and runs expression against vars (the run context) and
// callables (the loaded udf module's exported functions), per spec §4.2:
// "Calls resolve against names in the evaluation context... populated with
// the run context plus all public user-function module members."
func Evaluate(ctx context.Context, expression string, vars map[string]value.Value, mod udf.Module) (value.Value, error) {
	if reStatementSeparator.MatchString(expression) {
		return nil, fmt.Errorf("%w: statement sequencing is not permitted: %q", ErrUnsupported, expression)
	}
	if reLetKeyword.MatchString(expression) {
		return nil, fmt.Errorf("%w: variable declarations are not permitted: %q", ErrUnsupported, expression)
	}

	env := make(map[string]any, len(vars)+8)
	for k, v := range vars {
		env[k] = v
	}
	for k, fn := range udf.Callables(ctx, mod) {
		env[k] = fn
	}

	program, err := expr.Compile(expression, expr.Env(env), expr.DisableAllBuiltins())
	if err != nil {
		return nil, fmt.Errorf("eval: compile %q: %w", expression, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("eval: run %q: %w", expression, err)
	}
	return result, nil
}

// Check reports whether expression parses as a valid expression under the
// restrictions Evaluate enforces, without requiring a concrete
// environment. It is used by loader.Validate (SPEC_FULL C.4) to check
// that every `when`/`check` expression at least parses, ahead of any run.
func Check(expression string) error {
	if reStatementSeparator.MatchString(expression) {
		return fmt.Errorf("%w: statement sequencing is not permitted: %q", ErrUnsupported, expression)
	}
	if reLetKeyword.MatchString(expression) {
		return fmt.Errorf("%w: variable declarations are not permitted: %q", ErrUnsupported, expression)
	}
	if _, err := expr.Compile(expression, expr.AllowUndefinedVariables(), expr.DisableAllBuiltins()); err != nil {
		return fmt.Errorf("eval: compile %q: %w", expression, err)
	}
	return nil
}

// Truthy applies the engine's guard/assertion truthiness rule: nil, false,
// zero numbers, empty strings, and empty collections are falsy; everything
// else, including a non-empty string like "false", is truthy.
func Truthy(v value.Value) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case []value.Value:
		return len(t) > 0
	case map[string]value.Value:
		return len(t) > 0
	default:
		return true
	}
}
