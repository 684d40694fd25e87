// Package persistence implements the Session Lifecycle Manager's
// on-disk state: the versioned JSON snapshot (spec.md §3, §6:
// "<sylas_home>/state.json") and a durable sqlite audit log of every
// activity relayed to the tracker (spec.md §7's "session never silently
// disappears" guarantee, supplemented per SPEC_FULL.md §4).
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sylas-dev/sylas/internal/session"
)

// FileSnapshotPersister implements session.Persister against a single
// JSON file, written atomically (write to a temp file, then rename) so a
// crash mid-write never corrupts the last-good snapshot.
type FileSnapshotPersister struct {
	path string
}

// NewFileSnapshotPersister builds a persister writing to path (typically
// "<sylas_home>/state.json").
func NewFileSnapshotPersister(path string) *FileSnapshotPersister {
	return &FileSnapshotPersister{path: path}
}

// Save writes snap to disk atomically.
func (p *FileSnapshotPersister) Save(snap session.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("preparing snapshot directory: %w", err)
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("renaming snapshot into place: %w", err)
	}
	return nil
}

// Load reads the last-saved snapshot, or an empty Snapshot if no file
// exists yet (first run). A version mismatch is not migrated here —
// spec.md's "explicit DTO ... forward- and backward-compatible
// migrations are possible" names the shape, not a migration table this
// package doesn't yet need one of.
func (p *FileSnapshotPersister) Load() (session.Snapshot, error) {
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return session.Snapshot{Version: session.SnapshotVersion}, nil
	}
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("reading snapshot file: %w", err)
	}
	var snap session.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return session.Snapshot{}, fmt.Errorf("parsing snapshot file: %w", err)
	}
	return snap, nil
}

var _ session.Persister = (*FileSnapshotPersister)(nil)
