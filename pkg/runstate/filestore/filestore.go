// Package filestore implements runstate.Store as spec §4.4's required
// "Durable" variant: one file per run in a configurable directory,
// atomic replace on save (temp file + rename, per spec §5's durability
// requirement), idempotent delete. The snapshot is encoded with
// gopkg.in/yaml.v3 for the same "stable, human-readable encoding"
// property the routine document itself uses.
package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tracelace/routine/pkg/routine"
)

// Store persists run-state snapshots as one YAML file per run under Dir.
type Store struct {
	dir string
}

// Options configures a Store.
type Options struct {
	// Dir is the directory snapshot files are written to. It must already
	// exist; Store does not create it.
	Dir string
}

// New constructs a durable Store rooted at opts.Dir.
func New(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("filestore: Dir is required")
	}
	return &Store{dir: opts.Dir}, nil
}

func (s *Store) path(runID string) string {
	return filepath.Join(s.dir, runID+".yaml")
}

// Save writes state atomically: marshal to a temp file in the same
// directory, then rename over the final path, so a crash mid-write leaves
// either the prior snapshot or the new one, never a partial file.
func (s *Store) Save(_ context.Context, state *routine.RunState) error {
	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("filestore: marshal: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".runstate-*.tmp")
	if err != nil {
		return fmt.Errorf("filestore: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("filestore: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestore: close: %w", err)
	}
	if err := os.Rename(tmpName, s.path(state.RunID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestore: rename: %w", err)
	}
	return nil
}

// Load reads and decodes the snapshot for runID, or returns (nil, nil) if
// no file exists for it.
func (s *Store) Load(_ context.Context, runID string) (*routine.RunState, error) {
	data, err := os.ReadFile(s.path(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("filestore: read: %w", err)
	}
	var state routine.RunState
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("filestore: unmarshal: %w", err)
	}
	return &state, nil
}

// Delete removes the snapshot file for runID. Deleting an absent run id
// is not an error.
func (s *Store) Delete(_ context.Context, runID string) error {
	if err := os.Remove(s.path(runID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("filestore: remove: %w", err)
	}
	return nil
}
