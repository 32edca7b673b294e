// Package toolregistry implements the Tool Registry (spec §4.3): a
// name-keyed directory of callables with optional structural validation
// of arguments and results, grounded on the teacher's tools.ToolSpec
// metadata shape (runtime/agent/tools/tools.go) but built for synchronous
// in-process dispatch rather than the teacher's distributed
// Pulse-stream provider loop, which is out of scope at this repo's scale.
package toolregistry

import (
	"context"
	"fmt"
	"sync"

	"github.com/tracelace/routine/pkg/routine"
	"github.com/tracelace/routine/pkg/schema"
	"github.com/tracelace/routine/pkg/value"
)

// Func is the callable a tool name resolves to: named arguments in,
// one Value out.
type Func func(ctx context.Context, args map[string]value.Value) (value.Value, error)

type entry struct {
	fn           Func
	argsSchema   *schema.Schema
	resultSchema *schema.Schema
}

// Registry is a thread-safe name-to-callable directory. The zero value is
// not usable; construct with New.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register stores a callable under name, optionally validating args and/or
// result against the given schemas on every call. A later Register call
// for the same name replaces the previous entry.
func (r *Registry) Register(name string, fn Func, argsSchema, resultSchema *schema.Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry{fn: fn, argsSchema: argsSchema, resultSchema: resultSchema}
}

// Names lists every registered tool name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// Call looks up name, validates args against its args schema if any,
// invokes the callable, then validates the result against its result
// schema if any. Errors are kind-tagged per spec §4.3 / §7: unknown tool
// (routine.ErrUnknownTool), argument/result shape (routine.ErrSchema), or
// the callable's own failure (routine.ErrToolExec).
func (r *Registry) Call(ctx context.Context, name string, args map[string]value.Value) (value.Value, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q is not registered", routine.ErrUnknownTool, name)
	}

	if e.argsSchema != nil {
		if err := e.argsSchema.Validate(args); err != nil {
			return nil, fmt.Errorf("%w: tool %q args: %w", routine.ErrSchema, name, err)
		}
	}

	result, err := e.fn(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("%w: tool %q: %w", routine.ErrToolExec, name, err)
	}

	if e.resultSchema != nil {
		if err := e.resultSchema.Validate(result); err != nil {
			return nil, fmt.Errorf("%w: tool %q result: %w", routine.ErrSchema, name, err)
		}
	}
	return result, nil
}
