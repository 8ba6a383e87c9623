package embedder_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramlabs/engram-go/pkg/embedder"
)

// countingProvider counts upstream calls and returns a fixed-size vector
// derived from the text length.
type countingProvider struct {
	dims       int
	embeds     int
	batchCalls int
	err        error
}

func (p *countingProvider) Embed(_ context.Context, text string) ([]float64, error) {
	p.embeds++
	if p.err != nil {
		return nil, p.err
	}
	return p.vec(text), nil
}

func (p *countingProvider) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	p.batchCalls++
	if p.err != nil {
		return nil, p.err
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = p.vec(text)
	}
	return out, nil
}

func (p *countingProvider) Dimensions() int { return p.dims }
func (p *countingProvider) Close() error    { return nil }

func (p *countingProvider) vec(text string) []float64 {
	d := p.dims
	if d == 0 {
		d = 8
	}
	v := make([]float64, d)
	v[0] = float64(len(text))
	return v
}

func TestCachedEmbedHit(t *testing.T) {
	upstream := &countingProvider{dims: 8}
	c, err := embedder.NewCached(upstream, 128)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	first, err := c.Embed(ctx, "alice likes coffee")
	require.NoError(t, err)
	c.Wait()

	second, err := c.Embed(ctx, "alice likes coffee")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, upstream.embeds)
}

func TestCachedEmbedBatchServesHits(t *testing.T) {
	upstream := &countingProvider{dims: 8}
	c, err := embedder.NewCached(upstream, 128)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	_, err = c.Embed(ctx, "warm")
	require.NoError(t, err)
	c.Wait()

	vecs, err := c.EmbedBatch(ctx, []string{"warm", "cold", "warm"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, vecs[0], vecs[2])

	// Only "cold" went upstream.
	assert.Equal(t, 1, upstream.embeds)
	assert.Equal(t, 1, upstream.batchCalls)
}

func TestCachedEmbedBatchAllHits(t *testing.T) {
	upstream := &countingProvider{dims: 8}
	c, err := embedder.NewCached(upstream, 128)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	_, err = c.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	c.Wait()

	_, err = c.EmbedBatch(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 1, upstream.batchCalls)
}

func TestCachedPropagatesErrors(t *testing.T) {
	upstream := &countingProvider{dims: 8, err: errors.New("quota exceeded")}
	c, err := embedder.NewCached(upstream, 128)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Embed(context.Background(), "text")
	assert.Error(t, err)
	_, err = c.EmbedBatch(context.Background(), []string{"text"})
	assert.Error(t, err)
}

func TestCachedLearnsDimensions(t *testing.T) {
	upstream := &countingProvider{dims: 0}
	c, err := embedder.NewCached(upstream, 128)
	require.NoError(t, err)
	defer c.Close()

	assert.Zero(t, c.Dimensions())
	_, err = c.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, 8, c.Dimensions())
}
