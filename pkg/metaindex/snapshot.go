package metaindex

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// snapshotVersion tags the on-disk snapshot format.
const snapshotVersion = 1

// snapshotFile persists the per-record projections only; the inverted maps
// and ranked lists are derived structures and are rebuilt on load. Enum
// fields round-trip through their explicit wire codecs (record.Confidence and
// record.Importance implement the JSON interfaces), and unknown fields
// written by newer versions are ignored.
type snapshotFile struct {
	Version int              `json:"version"`
	Entries map[string]entry `json:"entries"`
}

// Snapshot writes the index to path atomically.
func (x *Index) Snapshot(path string) error {
	x.mu.RLock()
	snap := snapshotFile{
		Version: snapshotVersion,
		Entries: make(map[string]entry, len(x.entries)),
	}
	for id, e := range x.entries {
		snap.Entries[id] = e
	}
	x.mu.RUnlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("Snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("Snapshot: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("Snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("Snapshot: %w", err)
	}
	return nil
}

// Load restores a snapshot, replacing the current contents and rebuilding
// every derived structure.
func (x *Index) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("Load: %w", err)
	}
	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("Load: malformed snapshot: %w", err)
	}
	if snap.Version > snapshotVersion {
		return fmt.Errorf("Load: unsupported snapshot version %d", snap.Version)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	x.entries = make(map[string]entry, len(snap.Entries))
	x.byType = make(map[string]idSet)
	x.bySubject = make(map[string]idSet)
	x.byKeyword = make(map[string]idSet)
	x.byTag = make(map[string]idSet)
	x.byCategory = make(map[string]idSet)
	x.byConfidence = make(map[string]idSet)
	x.byImportance = make(map[string]idSet)
	x.byHash = make(map[string]idSet)
	x.byCreated = nil
	x.byRelevance = nil
	x.byAccess = nil
	x.byAccessed = nil

	for id, e := range snap.Entries {
		x.addLocked(id, e)
	}
	return nil
}
