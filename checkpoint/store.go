// Package checkpoint persists a civicrun runtime's full state to a single
// JSON file, writing atomically via a temp file plus rename and refusing to
// load a file whose embedded ledger chain does not verify. Save stages the
// document in a temp file and renames it over the live file; the chain is
// verified by Load, not by Save.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"civicrun/ledger"
	"civicrun/state"
)

// Version is the on-disk checkpoint format version. Bump when the shape of
// Document changes in a way that would break an older loader.
const Version = 1

// Document is the full on-disk checkpoint payload.
type Document struct {
	FormatVersion int               `json:"format_version"`
	SavedAt       string            `json:"saved_at"`
	Ledger        []ledger.Event    `json:"ledger"`
	State         *state.Snapshot   `json:"state"`
	Snapshots     []*state.Snapshot `json:"snapshots"`
}

// Save writes st, l, and the kernel's rollback ring (snapshots, oldest
// first) to path atomically: it marshals into a temp file in the same
// directory, then renames over path so a crash mid-write never leaves a
// truncated or partially-written checkpoint in place.
func Save(path string, st *state.State, l *ledger.Ledger, snapshots []*state.Snapshot, now time.Time) error {
	doc := Document{
		FormatVersion: Version,
		SavedAt:       now.UTC().Format(time.RFC3339),
		Ledger:        l.Events(),
		State:         st.Snapshot(),
		Snapshots:     snapshots,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("checkpoint: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("checkpoint: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return fmt.Errorf("checkpoint: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("checkpoint: activate checkpoint: %w", err)
	}
	return nil
}

// Load reads a checkpoint from path, verifies its ledger's hash chain, and
// restores it into a fresh State. A tampered or truncated ledger is
// rejected before any state is restored. The returned snapshots are the
// kernel's rollback ring as of the save, oldest first, for the caller to
// hand to Kernel.RestoreRing so rollback history survives the round-trip.
func Load(path string) (*state.State, *ledger.Ledger, []*state.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("checkpoint: read %s: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, nil, fmt.Errorf("checkpoint: decode %s: %w", path, err)
	}
	if doc.FormatVersion != Version {
		return nil, nil, nil, fmt.Errorf("checkpoint: unsupported format_version %d (want %d)", doc.FormatVersion, Version)
	}

	l := ledger.New()
	for _, ev := range doc.Ledger {
		if _, err := l.Append(ev); err != nil {
			return nil, nil, nil, fmt.Errorf("checkpoint: replay event %s: %w", ev.ID, err)
		}
	}
	if ok, problems := l.VerifyIntegrity(); !ok {
		return nil, nil, nil, fmt.Errorf("checkpoint: ledger integrity check failed: %v", problems)
	}

	st := state.New()
	if doc.State != nil {
		st.Restore(doc.State)
	}
	return st, l, doc.Snapshots, nil
}

// Exists reports whether a checkpoint file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
