// Package value defines the opaque JSON-like Value shape shared by every
// component of the routine engine: step arguments, saved results, trace
// events, and run contexts are all trees of Value.
//
// Value has no dedicated Go type; it is any of nil, bool, int or int64,
// float64, string, []any (ordered sequence of Value), or map[string]any
// (mapping of string to Value). gopkg.in/yaml.v3 decodes integers as int,
// encoding/json decodes every number as float64. Decoding JSON/YAML into Value trees is the caller's
// responsibility (encoding/json and gopkg.in/yaml.v3 already produce this
// shape for object documents); this package only provides canonicalization,
// structural equality, and defensive copying over that shape.
package value

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Value is the opaque JSON-like value used throughout the routine engine.
// It is an alias, not a distinct type, so callers can pass map[string]any
// and []any literals directly without conversion.
type Value = any

// Equal reports whether a and b are structurally equal using canonical
// key ordering, per spec §3: "Equality is structural with canonical key
// ordering."
func Equal(a, b Value) bool {
	return Canonical(a) == Canonical(b)
}

// Canonical produces a stable, type-tagged string encoding of v suitable for
// use as a map key (the trace compiler's result_map, §4.7) or for structural
// equality checks. Unlike plain JSON serialization, Canonical tags each leaf
// with its Go type so that an int64 3 and a float64 3.0 never collide, and a
// string that happens to equal an encoded composite never collides with
// that composite. This resolves the strengthening suggested in spec §9's
// Design Notes ("Implementers may strengthen with a typed canonical form
// (type tag + bytes) without changing the external contract").
func Canonical(v Value) string {
	var b strings.Builder
	writeCanonical(&b, v)
	return b.String()
}

func writeCanonical(b *strings.Builder, v Value) {
	switch t := v.(type) {
	case nil:
		b.WriteString("n")
	case bool:
		b.WriteString("b:")
		b.WriteString(strconv.FormatBool(t))
	case int:
		b.WriteString("i:")
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case int64:
		b.WriteString("i:")
		b.WriteString(strconv.FormatInt(t, 10))
	case float64:
		// An integral float is still tagged "f" so it never collides with
		// an "i"-tagged integer of the same magnitude.
		b.WriteString("f:")
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	case string:
		b.WriteString("s:")
		b.WriteString(strconv.Quote(t))
	case []Value:
		b.WriteString("[")
		for i, e := range t {
			if i > 0 {
				b.WriteString(",")
			}
			writeCanonical(b, e)
		}
		b.WriteString("]")
	case map[string]Value:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("{")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(strconv.Quote(k))
			b.WriteString(":")
			writeCanonical(b, t[k])
		}
		b.WriteString("}")
	default:
		// Defensive fallback for concrete numeric/string-like types decoders
		// might hand us (e.g. json.Number, custom aliases).
		b.WriteString("x:")
		fmt.Fprintf(b, "%v", t)
	}
}

// DeepCopy returns a structurally independent copy of v. Engine pause
// snapshots rely on this to guarantee later context mutations never reach a
// previously persisted Run State (spec §9, "Pause snapshot isolation").
func DeepCopy(v Value) Value {
	switch t := v.(type) {
	case []Value:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = DeepCopy(e)
		}
		return out
	case map[string]Value:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = DeepCopy(e)
		}
		return out
	default:
		return v
	}
}

// DeepCopyContext copies a flat context mapping, deep-copying each value.
func DeepCopyContext(ctx map[string]Value) map[string]Value {
	out := make(map[string]Value, len(ctx))
	for k, v := range ctx {
		out[k] = DeepCopy(v)
	}
	return out
}

// Kind names the dynamic shape of a Value using JSON-Schema type names. The
// trace compiler uses it to pick the Go result type named in a generated
// user-function stub's comment; schema inference itself is schema.Infer.
func Kind(v Value) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case int, int64:
		return "integer"
	case float64:
		if t == float64(int64(t)) {
			return "integer"
		}
		return "number"
	case string:
		return "string"
	case []Value:
		return "array"
	case map[string]Value:
		return "object"
	default:
		return "string"
	}
}
