package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/engramlabs/engram-go/pkg/record"
)

const recordSnapshotVersion = 1

// recordSnapshot is the versioned on-disk form of the record set. Unknown
// fields are ignored on load so newer writers stay readable.
type recordSnapshot struct {
	Version int             `json:"version"`
	Records []snapshotEntry `json:"records"`
}

// snapshotEntry carries the embedding explicitly because MemoryRecord
// excludes it from its own JSON form.
type snapshotEntry struct {
	Record    *record.MemoryRecord `json:"record"`
	Embedding []float64            `json:"embedding,omitempty"`
}

// saveRecordSnapshot writes the record set atomically via a temp file.
func saveRecordSnapshot(path string, records []*record.MemoryRecord) error {
	snap := recordSnapshot{Version: recordSnapshotVersion}
	for _, rec := range records {
		snap.Records = append(snap.Records, snapshotEntry{Record: rec, Embedding: rec.Embedding})
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("record snapshot: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

// loadRecordSnapshot reads a record snapshot, skipping malformed entries.
func loadRecordSnapshot(path string) ([]*record.MemoryRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("record snapshot: %w", err)
	}

	var snap recordSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("record snapshot: %w", err)
	}
	if snap.Version != recordSnapshotVersion {
		return nil, fmt.Errorf("record snapshot: unsupported version %d", snap.Version)
	}

	records := make([]*record.MemoryRecord, 0, len(snap.Records))
	for _, e := range snap.Records {
		if e.Record == nil || e.Record.ID == "" {
			continue
		}
		e.Record.Embedding = e.Embedding
		records = append(records, e.Record)
	}
	return records, nil
}
