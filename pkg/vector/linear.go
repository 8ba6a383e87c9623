package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// linearSnapshotVersion tags the on-disk snapshot format.
const linearSnapshotVersion = 1

// Linear is the exhaustive-scan cosine similarity backend.
//
// Vectors are normalized on insert, so similarity reduces to a dot product.
// Adequate for stores up to tens of thousands of records; beyond that the
// ANN backend should be selected at construction.
type Linear struct {
	mu    sync.RWMutex
	dims  int
	ids   []string
	slots map[string]int
	vecs  [][]float64
}

// NewLinear creates an empty linear index. dims may be zero to adopt the
// dimension of the first inserted vector.
func NewLinear(dims int) *Linear {
	return &Linear{
		dims:  dims,
		slots: make(map[string]int),
	}
}

// Insert adds or replaces the vector for id.
func (l *Linear) Insert(_ context.Context, id string, vec []float64) error {
	if len(vec) == 0 {
		return ErrEmptyVector
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.dims == 0 {
		l.dims = len(vec)
	}
	if len(vec) != l.dims {
		return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vec), l.dims)
	}

	normalized := Normalize(vec)
	if slot, ok := l.slots[id]; ok {
		l.vecs[slot] = normalized
		return nil
	}
	l.slots[id] = len(l.ids)
	l.ids = append(l.ids, id)
	l.vecs = append(l.vecs, normalized)
	return nil
}

// Remove deletes the vector for id via swap-delete.
func (l *Linear) Remove(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.slots[id]
	if !ok {
		return nil
	}
	last := len(l.ids) - 1
	if slot != last {
		l.ids[slot] = l.ids[last]
		l.vecs[slot] = l.vecs[last]
		l.slots[l.ids[slot]] = slot
	}
	l.ids = l.ids[:last]
	l.vecs = l.vecs[:last]
	delete(l.slots, id)
	return nil
}

// Search scans every stored vector and returns the top k by similarity.
func (l *Linear) Search(_ context.Context, query []float64, k int) ([]Match, error) {
	if len(query) == 0 {
		return nil, ErrEmptyVector
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.ids) == 0 || k <= 0 {
		return []Match{}, nil
	}
	if l.dims != 0 && len(query) != l.dims {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), l.dims)
	}

	q := Normalize(query)
	matches := make([]Match, 0, len(l.ids))
	for slot, id := range l.ids {
		var dot float64
		vec := l.vecs[slot]
		for i := range vec {
			dot += vec[i] * q[i]
		}
		matches = append(matches, Match{ID: id, Similarity: clamp01(dot)})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Len reports the number of stored vectors.
func (l *Linear) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ids)
}

// Dimensions reports the fixed vector dimension.
func (l *Linear) Dimensions() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dims
}

// linearSnapshot is the versioned on-disk form. Unknown fields written by
// newer versions are ignored on load.
type linearSnapshot struct {
	Version    int         `json:"version"`
	Dimensions int         `json:"dimensions"`
	IDs        []string    `json:"ids"`
	Vectors    [][]float64 `json:"vectors"`
}

// Snapshot writes the vectors and id mapping to path atomically.
func (l *Linear) Snapshot(path string) error {
	l.mu.RLock()
	snap := linearSnapshot{
		Version:    linearSnapshotVersion,
		Dimensions: l.dims,
		IDs:        append([]string(nil), l.ids...),
		Vectors:    append([][]float64(nil), l.vecs...),
	}
	l.mu.RUnlock()

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

// Load restores a snapshot, replacing the current contents. Slices whose
// dimension disagrees with the snapshot header are skipped rather than
// failing the whole load.
func (l *Linear) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("Load: %w", err)
	}
	var snap linearSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("Load: malformed snapshot: %w", err)
	}
	if snap.Version > linearSnapshotVersion {
		return fmt.Errorf("Load: unsupported snapshot version %d", snap.Version)
	}
	if len(snap.IDs) != len(snap.Vectors) {
		return fmt.Errorf("Load: malformed snapshot: %d ids, %d vectors", len(snap.IDs), len(snap.Vectors))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.dims = snap.Dimensions
	l.ids = l.ids[:0]
	l.vecs = l.vecs[:0]
	l.slots = make(map[string]int, len(snap.IDs))
	for i, id := range snap.IDs {
		vec := snap.Vectors[i]
		if l.dims != 0 && len(vec) != l.dims {
			continue
		}
		l.slots[id] = len(l.ids)
		l.ids = append(l.ids, id)
		l.vecs = append(l.vecs, vec)
	}
	return nil
}

// Close releases nothing for the linear backend.
func (l *Linear) Close() error { return nil }
