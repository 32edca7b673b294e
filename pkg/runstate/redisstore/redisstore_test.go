package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracelace/routine/pkg/routine"
	"github.com/tracelace/routine/pkg/value"
)

func newRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewFromAddr(mr.Addr(), 0)
	require.NoError(t, err)
	return store
}

func TestNewRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := New(Options{})
	assert.Error(t, err)
}

func TestSaveLoadDeleteRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	state := &routine.RunState{
		RunID:         "run-1",
		RoutineDir:    "/tmp/r",
		StepIndex:     3,
		Context:       map[string]value.Value{"a": int64(1)},
		PendingStepID: "s4",
	}
	require.NoError(t, store.Save(context.Background(), state))

	loaded, err := store.Load(context.Background(), "run-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, state.RunID, loaded.RunID)
	assert.Equal(t, state.PendingStepID, loaded.PendingStepID)
	assert.EqualValues(t, 1, loaded.Context["a"])

	require.NoError(t, store.Delete(context.Background(), "run-1"))
	loaded, err = store.Load(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// deleting an absent snapshot is not an error
	require.NoError(t, store.Delete(context.Background(), "run-1"))
}

func TestLoadAbsentReturnsNilNil(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	loaded, err := store.Load(context.Background(), "never-saved")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSaveOverwritesPriorSnapshot(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	require.NoError(t, store.Save(context.Background(), &routine.RunState{RunID: "r", StepIndex: 1}))
	require.NoError(t, store.Save(context.Background(), &routine.RunState{RunID: "r", StepIndex: 2}))

	loaded, err := store.Load(context.Background(), "r")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 2, loaded.StepIndex)
}

func TestKeyPrefixIsConfigurable(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	store, err := New(Options{Client: newRedisClient(mr.Addr()), KeyPrefix: "custom:"})
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), &routine.RunState{RunID: "x"}))
	assert.True(t, mr.Exists("custom:x"))
}
