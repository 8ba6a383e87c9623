// Package recordstore provides durable persistence backends for memory
// records.
//
// It defines the RecordStore interface that all backends must satisfy. The
// store facade treats the record store as the source of truth on startup:
// records are loaded from it and the in-memory indices rebuilt when no
// usable snapshot exists.
package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/engramlabs/engram-go/pkg/record"
)

// ErrNotFound is returned when a record id does not exist in the store.
var ErrNotFound = errors.New("recordstore: record not found")

// RecordStore persists memory records durably.
type RecordStore interface {
	// Save inserts or replaces a record by id.
	Save(ctx context.Context, rec *record.MemoryRecord) error

	// Get returns the record with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*record.MemoryRecord, error)

	// Delete removes a record by id. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error

	// List returns every stored record.
	List(ctx context.Context) ([]*record.MemoryRecord, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)

	// Close releases the underlying connection.
	Close() error
}

// payload is the JSON document stored alongside the queryable columns. The
// embedding is carried separately because MemoryRecord excludes it from its
// own JSON form.
type payload struct {
	Record    *record.MemoryRecord `json:"record"`
	Embedding []float64            `json:"embedding,omitempty"`
}

// EncodeRecord serializes a record (embedding included) for storage.
func EncodeRecord(rec *record.MemoryRecord) ([]byte, error) {
	data, err := json.Marshal(payload{Record: rec, Embedding: rec.Embedding})
	if err != nil {
		return nil, fmt.Errorf("recordstore: encode %s: %w", rec.ID, err)
	}
	return data, nil
}

// DecodeRecord deserializes a stored record. Unknown fields are ignored so
// newer writers stay readable.
func DecodeRecord(data []byte) (*record.MemoryRecord, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("recordstore: decode: %w", err)
	}
	if p.Record == nil {
		return nil, errors.New("recordstore: decode: empty payload")
	}
	p.Record.Embedding = p.Embedding
	return p.Record, nil
}
