package toolregistry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelace/routine/pkg/routine"
	"github.com/tracelace/routine/pkg/schema"
	"github.com/tracelace/routine/pkg/value"
)

func TestCallUnknownTool(t *testing.T) {
	t.Parallel()

	r := New()
	_, err := r.Call(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, routine.ErrUnknownTool)
}

func TestCallDispatchesAndReturnsResult(t *testing.T) {
	t.Parallel()

	r := New()
	r.Register("echo", func(_ context.Context, args map[string]value.Value) (value.Value, error) {
		return args["x"], nil
	}, nil, nil)

	result, err := r.Call(context.Background(), "echo", map[string]value.Value{"x": int64(7)})
	require.NoError(t, err)
	assert.Equal(t, int64(7), result)
	assert.Equal(t, []string{"echo"}, r.Names())
}

func TestCallValidatesArgsAndResultSchemas(t *testing.T) {
	t.Parallel()

	argsSchema, err := schema.Compile(map[string]any{
		"type":     "object",
		"required": []any{"x"},
	})
	require.NoError(t, err)
	resultSchema, err := schema.Compile(map[string]any{"type": "string"})
	require.NoError(t, err)

	r := New()
	r.Register("echo", func(_ context.Context, args map[string]value.Value) (value.Value, error) {
		return args["x"], nil
	}, argsSchema, resultSchema)

	_, err = r.Call(context.Background(), "echo", map[string]value.Value{})
	assert.ErrorIs(t, err, routine.ErrSchema)

	_, err = r.Call(context.Background(), "echo", map[string]value.Value{"x": int64(1)})
	assert.ErrorIs(t, err, routine.ErrSchema)

	result, err := r.Call(context.Background(), "echo", map[string]value.Value{"x": "ok"})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestCallWrapsCallableFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	r := New()
	r.Register("fail", func(_ context.Context, _ map[string]value.Value) (value.Value, error) {
		return nil, boom
	}, nil, nil)

	_, err := r.Call(context.Background(), "fail", nil)
	assert.ErrorIs(t, err, routine.ErrToolExec)
	assert.ErrorIs(t, err, boom)
}

func TestRegisterReplacesExistingEntry(t *testing.T) {
	t.Parallel()

	r := New()
	r.Register("t", func(context.Context, map[string]value.Value) (value.Value, error) {
		return "first", nil
	}, nil, nil)
	r.Register("t", func(context.Context, map[string]value.Value) (value.Value, error) {
		return "second", nil
	}, nil, nil)

	result, err := r.Call(context.Background(), "t", nil)
	require.NoError(t, err)
	assert.Equal(t, "second", result)
}
