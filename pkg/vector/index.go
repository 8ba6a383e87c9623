// Package vector provides the embedded vector index: normalized embedding
// storage answering top-K similarity queries.
//
// Two interchangeable backends implement the same Index interface: an
// approximate-nearest-neighbor backend built on the chromem-go embedded
// vector database, and a pure linear-scan cosine backend. The backend is
// chosen once at construction and never branched at call sites.
package vector

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for index operations.
var (
	// ErrDimensionMismatch indicates an inserted or queried vector does not
	// match the index dimension. The offending record is skipped and the
	// batch continues.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrEmptyVector indicates a nil or zero-length vector.
	ErrEmptyVector = errors.New("empty vector")
)

// Backend names accepted by New.
const (
	BackendLinear = "linear"
	BackendANN    = "ann"
)

// Match is a single similarity search hit.
type Match struct {
	// ID is the record identifier.
	ID string

	// Similarity is the cosine similarity clamped to [0,1].
	Similarity float64
}

// Index stores normalized embeddings and answers top-K similarity queries.
//
// Implementations are safe for concurrent use.
type Index interface {
	// Insert adds or replaces the vector for id. A vector whose length
	// differs from the index dimension is rejected with
	// ErrDimensionMismatch.
	Insert(ctx context.Context, id string, vec []float64) error

	// Remove deletes the vector for id. Removing an absent id is a no-op.
	Remove(ctx context.Context, id string) error

	// Search returns up to k matches ranked by descending similarity.
	// An empty index yields an empty result, not an error.
	Search(ctx context.Context, query []float64, k int) ([]Match, error)

	// Len reports the number of stored vectors.
	Len() int

	// Dimensions reports the fixed vector dimension (0 until the first
	// insert when the dimension is auto-detected).
	Dimensions() int

	// Snapshot persists the vectors and id mapping to path. Reloading the
	// snapshot reaches a semantically equivalent index.
	Snapshot(path string) error

	// Load restores a snapshot previously written by Snapshot.
	Load(path string) error

	// Close releases backend resources.
	Close() error
}

// New constructs an index for the named backend. dims may be zero, in which
// case the dimension is adopted from the first inserted vector.
func New(backend string, dims int) (Index, error) {
	switch backend {
	case BackendLinear, "":
		return NewLinear(dims), nil
	case BackendANN:
		return NewANN(dims)
	default:
		return nil, fmt.Errorf("vector: unknown backend %q", backend)
	}
}
