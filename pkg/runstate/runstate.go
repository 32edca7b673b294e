// Package runstate defines the State Store capability (spec §4.4): a
// durable or in-memory mapping from run identifier to paused-run
// snapshot. Three implementations exist: the ephemeral in-process store
// in this package (grounded on the teacher's runtime/agent/run/inmem
// package), a durable one-file-per-run store in runstate/filestore
// (spec-mandated), and an optional Redis-backed store in
// runstate/redisstore for multi-process deployments (adopted from the
// teacher's Redis dependency, which the core agent runtime does not
// otherwise use for run state but which the pack's go.mod carries).
package runstate

import (
	"context"
	"sync"

	"github.com/tracelace/routine/pkg/routine"
	"github.com/tracelace/routine/pkg/value"
)

// Store is the capability set spec §4.4 requires: save, load (absent is
// not an error — nil, nil), delete (idempotent).
type Store interface {
	Save(ctx context.Context, state *routine.RunState) error
	Load(ctx context.Context, runID string) (*routine.RunState, error)
	Delete(ctx context.Context, runID string) error
}

// Ephemeral is an in-process Store; state is lost when the process ends.
// Grounded directly on runtime/agent/run/inmem.Store: a mutex-guarded map
// with defensive copies in and out so callers can never mutate stored
// state through a returned pointer.
type Ephemeral struct {
	mu     sync.RWMutex
	states map[string]routine.RunState
}

// NewEphemeral returns an empty in-process Store.
func NewEphemeral() *Ephemeral {
	return &Ephemeral{states: make(map[string]routine.RunState)}
}

// Save stores a deep copy of state, keyed by state.RunID.
func (e *Ephemeral) Save(_ context.Context, state *routine.RunState) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states[state.RunID] = cloneState(*state)
	return nil
}

// Load returns a deep copy of the stored state, or (nil, nil) if absent.
func (e *Ephemeral) Load(_ context.Context, runID string) (*routine.RunState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.states[runID]
	if !ok {
		return nil, nil
	}
	c := cloneState(s)
	return &c, nil
}

// Delete removes a stored state; deleting an absent run id is a no-op.
func (e *Ephemeral) Delete(_ context.Context, runID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.states, runID)
	return nil
}

func cloneState(s routine.RunState) routine.RunState {
	s.Context = value.DeepCopyContext(s.Context)
	return s
}
