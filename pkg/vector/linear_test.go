package vector_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engram-go/pkg/vector"
)

func TestLinearInsertAndSearch(t *testing.T) {
	ctx := context.Background()
	idx, err := vector.New(vector.BackendLinear, 3)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Insert(ctx, "a", []float64{1, 0, 0}))
	require.NoError(t, idx.Insert(ctx, "b", []float64{0, 1, 0}))
	require.NoError(t, idx.Insert(ctx, "c", []float64{0.9, 0.1, 0}))
	assert.Equal(t, 3, idx.Len())

	matches, err := idx.Search(ctx, []float64{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, "c", matches[1].ID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)
	assert.Greater(t, matches[0].Similarity, matches[1].Similarity)
}

func TestLinearDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx, err := vector.New(vector.BackendLinear, 3)
	require.NoError(t, err)
	defer idx.Close()

	err = idx.Insert(ctx, "a", []float64{1, 0})
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)

	err = idx.Insert(ctx, "a", nil)
	assert.ErrorIs(t, err, vector.ErrEmptyVector)
}

func TestLinearDimensionAutoAdopt(t *testing.T) {
	ctx := context.Background()
	idx, err := vector.New(vector.BackendLinear, 0)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Insert(ctx, "a", []float64{1, 0, 0, 0}))
	assert.Equal(t, 4, idx.Dimensions())

	err = idx.Insert(ctx, "b", []float64{1, 0})
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)
}

func TestLinearRemove(t *testing.T) {
	ctx := context.Background()
	idx, err := vector.New(vector.BackendLinear, 2)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Insert(ctx, "a", []float64{1, 0}))
	require.NoError(t, idx.Insert(ctx, "b", []float64{0, 1}))
	require.NoError(t, idx.Remove(ctx, "a"))
	assert.Equal(t, 1, idx.Len())

	matches, err := idx.Search(ctx, []float64{1, 0}, 5)
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotEqual(t, "a", m.ID)
	}

	// Removing a missing id is not an error.
	assert.NoError(t, idx.Remove(ctx, "ghost"))
}

func TestLinearSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.snap")

	idx, err := vector.New(vector.BackendLinear, 3)
	require.NoError(t, err)
	require.NoError(t, idx.Insert(ctx, "a", []float64{1, 0, 0}))
	require.NoError(t, idx.Insert(ctx, "b", []float64{0, 1, 0}))
	require.NoError(t, idx.Snapshot(path))
	require.NoError(t, idx.Close())

	restored, err := vector.New(vector.BackendLinear, 0)
	require.NoError(t, err)
	defer restored.Close()
	require.NoError(t, restored.Load(path))

	assert.Equal(t, 2, restored.Len())
	assert.Equal(t, 3, restored.Dimensions())

	matches, err := restored.Search(ctx, []float64{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0].ID)
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := vector.New("hnsw", 3)
	assert.Error(t, err)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, vector.Cosine([]float64{1, 0}, []float64{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, vector.Cosine([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.Equal(t, 0.0, vector.Cosine([]float64{1, 0}, []float64{0, 1, 2}))
	assert.Equal(t, 0.0, vector.Cosine(nil, nil))
}
