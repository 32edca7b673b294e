// Package udf defines the callable surface a loaded user-function module
// exposes to the routine engine.
//
// Per spec §9 ("Reflective function loading"), this repo takes option (a):
// user-function packages register explicitly, name to callable, typed at
// the boundary by value.Value. There is no dynamic bytecode loading; a
// routine package's user functions are a Go value the caller constructs
// (typically from a small generated or hand-written package living
// alongside routine.yaml) and hands to the loader or engine.
package udf

import (
	"context"
	"fmt"

	"github.com/tracelace/routine/pkg/value"
)

// Func is a user-defined transformation invoked by a udf.call step, or
// called from within a template (as a bare template func, `{{ name arg }}`;
// see pkg/render) or a safe
// expression (`when`/`assert.check`, §4.2). It takes a mapping of named
// Value arguments and returns a Value, exactly the contract spec §9's
// Design Note describes: "a name resolves to a callable accepting a
// mapping of named Value arguments and returning a Value; everything else
// is packaging." Errors propagate as step-level udf-exec failures (§7).
type Func func(ctx context.Context, args map[string]value.Value) (value.Value, error)

// Module resolves user-function names to callables. A loaded routine
// package's udf module implements this; the zero value of MapModule
// satisfies it for tests and hand-authored routines.
type Module interface {
	// Lookup resolves name to a callable. ok is false when the module has
	// no function by that name (spec's unknown-udf error kind).
	Lookup(name string) (Func, bool)
	// Names lists every exported function name, used to populate the safe
	// evaluator's callable namespace ("all public user-function module
	// members that are callables", §4.2).
	Names() []string
}

// MapModule is the simplest Module: an explicit name-to-callable table.
type MapModule map[string]Func

// Lookup implements Module.
func (m MapModule) Lookup(name string) (Func, bool) {
	f, ok := m[name]
	return f, ok
}

// Names implements Module.
func (m MapModule) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	return names
}

// Callables returns a name-to-any map suitable for merging into a safe
// evaluator or template environment. Each Func is bound to ctx and
// adapted to positional calling, since that is the only call syntax
// github.com/expr-lang/expr and text/template source expressions can
// write (`fname(1, 2)`): positional argument i is bound under the
// synthetic key "argI". A user function that wants genuinely named
// access to its arguments is still reachable from udf.call steps, whose
// engine dispatch invokes the Func directly with the step's declared
// args mapping rather than going through this adapter.
func Callables(ctx context.Context, m Module) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any)
	for _, name := range m.Names() {
		fn, ok := m.Lookup(name)
		if !ok {
			continue
		}
		bound := fn
		out[name] = func(args ...any) (any, error) {
			vargs := make(map[string]value.Value, len(args))
			for i, a := range args {
				vargs[fmt.Sprintf("arg%d", i)] = a
			}
			return bound(ctx, vargs)
		}
	}
	return out
}
