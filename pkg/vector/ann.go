package vector

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// annCollection is the single chromem collection the index writes to. The
// engine keys everything by record id, so one collection per index suffices;
// scope separation happens in the metadata index.
const annCollection = "engram_vectors"

// ANN is the approximate-nearest-neighbor backend built on the chromem-go
// embedded vector database.
type ANN struct {
	mu   sync.RWMutex
	db   *chromem.DB
	col  *chromem.Collection
	dims int
}

// NewANN creates an in-memory chromem-backed index. dims may be zero to
// adopt the dimension of the first inserted vector.
func NewANN(dims int) (*ANN, error) {
	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection(annCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector: create collection: %w", err)
	}
	return &ANN{db: db, col: col, dims: dims}, nil
}

// Insert adds or replaces the vector for id.
func (a *ANN) Insert(ctx context.Context, id string, vec []float64) error {
	if len(vec) == 0 {
		return ErrEmptyVector
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dims == 0 {
		a.dims = len(vec)
	}
	if len(vec) != a.dims {
		return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vec), a.dims)
	}

	doc := chromem.Document{
		ID:        id,
		Embedding: toFloat32(Normalize(vec)),
	}
	if err := a.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("vector: insert %s: %w", id, err)
	}
	return nil
}

// Remove deletes the vector for id.
func (a *ANN) Remove(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("vector: remove %s: %w", id, err)
	}
	return nil
}

// Search queries the chromem collection for the top k matches. k is clamped
// to the collection size, which chromem requires.
func (a *ANN) Search(ctx context.Context, query []float64, k int) ([]Match, error) {
	if len(query) == 0 {
		return nil, ErrEmptyVector
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	count := a.col.Count()
	if count == 0 || k <= 0 {
		return []Match{}, nil
	}
	if a.dims != 0 && len(query) != a.dims {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), a.dims)
	}
	if k > count {
		k = count
	}

	results, err := a.col.QueryEmbedding(ctx, toFloat32(Normalize(query)), k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector: search: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, res := range results {
		matches = append(matches, Match{
			ID:         res.ID,
			Similarity: clamp01(float64(res.Similarity)),
		})
	}
	return matches, nil
}

// Len reports the number of stored vectors.
func (a *ANN) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.col.Count()
}

// Dimensions reports the fixed vector dimension.
func (a *ANN) Dimensions() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.dims
}

// Snapshot exports the chromem database to a single file at path.
func (a *ANN) Snapshot(path string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if err := a.db.Export(path, false, ""); err != nil {
		return fmt.Errorf("Snapshot: %w", err)
	}
	return nil
}

// Load imports a snapshot previously written by Snapshot, replacing the
// current contents.
func (a *ANN) Load(path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	db := chromem.NewDB()
	if err := db.Import(path, ""); err != nil {
		return fmt.Errorf("Load: malformed snapshot: %w", err)
	}
	col, err := db.GetOrCreateCollection(annCollection, nil, nil)
	if err != nil {
		return fmt.Errorf("Load: %w", err)
	}
	a.db = db
	a.col = col
	return nil
}

// Close releases nothing; chromem is embedded and garbage-collected.
func (a *ANN) Close() error { return nil }
