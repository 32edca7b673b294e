// Package schema implements the subset structural schema format described in
// spec §3 ("Schema") — type, properties, required, items — used for optional
// validation at tool boundaries and for routine input/output documents.
//
// Schema documents are represented as plain JSON (map[string]any) so they can
// be embedded directly in routine.yaml / schemas/*.schema.json without a
// bespoke intermediate type, and validated with
// github.com/santhosh-tekuri/jsonschema/v6, the same library the teacher
// (goadesign-goa-ai) uses for tool-spec schema validation.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema wraps a compiled JSON Schema document. The zero value is not valid;
// construct with Compile or Parse.
type Schema struct {
	doc      map[string]any
	compiled *jsonschema.Schema
}

// Parse compiles a schema from raw JSON bytes. Numbers in the schema
// document itself (e.g. "minimum": 3) decode to float64 like every other
// JSON-decoding path in this repo (loader.LoadInput, the CLI's --input
// flag); a schema document is never fed through value.Kind/eval, but
// keeping one decode convention repo-wide avoids a second, inconsistent
// number representation for no benefit.
func Parse(raw []byte) (*Schema, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("schema: decode: %w", err)
	}
	return Compile(doc)
}

// Compile compiles a schema from an already-decoded document (e.g. a
// map[string]any literal authored inline in a routine document).
func Compile(doc map[string]any) (*Schema, error) {
	c := jsonschema.NewCompiler()
	const resourceName = "schema.json"
	if err := c.AddResource(resourceName, doc); err != nil {
		return nil, fmt.Errorf("schema: add resource: %w", err)
	}
	compiled, err := c.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("schema: compile: %w", err)
	}
	return &Schema{doc: doc, compiled: compiled}, nil
}

// Validate checks v (already decoded into Go values, e.g. map[string]any /
// []any / string / float64 / bool / nil) against the schema. The returned
// error, when non-nil, is always safe to present to callers as a
// schema-validation error (spec §7, kind "schema").
func (s *Schema) Validate(v any) error {
	if s == nil || s.compiled == nil {
		return nil
	}
	if err := s.compiled.Validate(v); err != nil {
		return fmt.Errorf("schema: validate: %w", err)
	}
	return nil
}

// Document returns the raw decoded schema document, e.g. for re-serializing
// into a routine package's schemas/ directory.
func (s *Schema) Document() map[string]any {
	if s == nil {
		return nil
	}
	return s.doc
}

// Infer derives a minimal structural schema document for v using the
// object/array/number/integer/boolean/string inference spec §4.7 step 4
// requires of the trace compiler. Objects infer properties from their
// current keys and mark all of them required; this is intentionally
// permissive — inferred schemas describe the one recorded observation, not
// a contract.
func Infer(v any) map[string]any {
	switch t := v.(type) {
	case nil:
		return map[string]any{"type": "null"}
	case bool:
		return map[string]any{"type": "boolean"}
	case int, int64:
		return map[string]any{"type": "integer"}
	case float64:
		if t == float64(int64(t)) {
			return map[string]any{"type": "integer"}
		}
		return map[string]any{"type": "number"}
	case string:
		return map[string]any{"type": "string"}
	case []any:
		var items map[string]any
		if len(t) > 0 {
			items = Infer(t[0])
		}
		out := map[string]any{"type": "array"}
		if items != nil {
			out["items"] = items
		}
		return out
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		props := make(map[string]any, len(t))
		required := make([]any, 0, len(t))
		for _, k := range keys {
			props[k] = Infer(t[k])
			required = append(required, k)
		}
		return map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		}
	default:
		return map[string]any{"type": "string"}
	}
}
