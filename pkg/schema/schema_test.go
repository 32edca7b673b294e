package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileAndValidate(t *testing.T) {
	t.Parallel()

	doc := map[string]any{
		"type":     "object",
		"required": []any{"name"},
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
			"age":  map[string]any{"type": "integer"},
		},
	}
	s, err := Compile(doc)
	require.NoError(t, err)

	require.NoError(t, s.Validate(map[string]any{"name": "ada", "age": 1}))

	err = s.Validate(map[string]any{"age": 1})
	assert.Error(t, err)
}

func TestParseFromJSON(t *testing.T) {
	t.Parallel()

	s, err := Parse([]byte(`{"type":"string"}`))
	require.NoError(t, err)
	require.NoError(t, s.Validate("hello"))
	assert.Error(t, s.Validate(42))
}

func TestValidateOnNilSchemaIsNoop(t *testing.T) {
	t.Parallel()

	var s *Schema
	assert.NoError(t, s.Validate("anything"))
	assert.Nil(t, s.Document())
}

func TestInfer(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		v    any
		want map[string]any
	}{
		{"null", nil, map[string]any{"type": "null"}},
		{"bool", true, map[string]any{"type": "boolean"}},
		{"integer float", float64(3), map[string]any{"type": "integer"}},
		{"number float", float64(3.5), map[string]any{"type": "number"}},
		{"string", "x", map[string]any{"type": "string"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Infer(tc.v))
		})
	}

	arr := Infer([]any{"x", "y"})
	assert.Equal(t, "array", arr["type"])
	assert.Equal(t, map[string]any{"type": "string"}, arr["items"])

	obj := Infer(map[string]any{"name": "ada"})
	assert.Equal(t, "object", obj["type"])
	props := obj["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "string"}, props["name"])
	assert.Equal(t, []any{"name"}, obj["required"])
}

func TestInferObjectRequiredOrderIsDeterministic(t *testing.T) {
	t.Parallel()

	v := map[string]any{"zeta": 1, "alpha": 2, "mid": 3}
	want := []any{"alpha", "mid", "zeta"}
	for i := 0; i < 10; i++ {
		got := Infer(v)
		assert.Equal(t, want, got["required"], "required order must be stable across repeated calls")
	}
}
