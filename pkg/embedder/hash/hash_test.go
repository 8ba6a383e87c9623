package hash_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engram-go/pkg/embedder/hash"
)

func TestEmbedDeterministic(t *testing.T) {
	e := hash.New(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Alice likes coffee")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "Alice likes coffee")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestEmbedNormalized(t *testing.T) {
	e := hash.New(hash.DefaultDimensions)
	vec, err := e.Embed(context.Background(), "bob moved to berlin last year")
	require.NoError(t, err)

	var norm float64
	for _, x := range vec {
		norm += x * x
	}
	assert.InDelta(t, 1.0, norm, 1e-9)
}

func TestEmbedCaseAndPunctuationInvariant(t *testing.T) {
	e := hash.New(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Alice likes coffee!")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "alice LIKES coffee")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEmbedSharedTokensCorrelate(t *testing.T) {
	e := hash.New(256)
	ctx := context.Background()

	a, err := e.Embed(ctx, "alice likes coffee")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "alice likes tea")
	require.NoError(t, err)

	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	// Two of three tokens shared.
	assert.Greater(t, dot, 0.5)
}

func TestEmbedEmptyText(t *testing.T) {
	e := hash.New(32)
	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	require.Len(t, vec, 32)
	for _, x := range vec {
		assert.Zero(t, x)
	}
}

func TestEmbedBatch(t *testing.T) {
	e := hash.New(64)
	vecs, err := e.EmbedBatch(context.Background(), []string{"one", "two", "one"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, vecs[0], vecs[2])
	assert.NotEqual(t, vecs[0], vecs[1])
}

func TestDefaultDimensions(t *testing.T) {
	assert.Equal(t, hash.DefaultDimensions, hash.New(0).Dimensions())
	assert.Equal(t, hash.DefaultDimensions, hash.New(-5).Dimensions())
	assert.Equal(t, 16, hash.New(16).Dimensions())

	// Never NaN even on empty input.
	vec, err := hash.New(8).Embed(context.Background(), "")
	require.NoError(t, err)
	for _, x := range vec {
		assert.False(t, math.IsNaN(x))
	}
}
