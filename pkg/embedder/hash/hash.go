// Package hash provides a deterministic, offline embedding provider.
//
// Tokens are hashed into a fixed number of buckets, so texts sharing words
// produce vectors with nonzero cosine similarity. It needs no network or API
// key and is meant for tests, demos, and air-gapped deployments.
package hash

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/engramlabs/engram-go/pkg/record"
)

// DefaultDimensions is the bucket count used when none is configured.
const DefaultDimensions = 128

// Embedder is a deterministic bag-of-words hashing embedder.
// It implements the embedder.Provider interface.
type Embedder struct {
	dimensions int
}

// New creates a hashing embedder with the given dimension.
// A dimension <= 0 falls back to DefaultDimensions.
func New(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Embedder{dimensions: dimensions}
}

// Embed converts a single text to a vector. It never fails.
func (e *Embedder) Embed(_ context.Context, text string) ([]float64, error) {
	return e.embed(text), nil
}

// EmbedBatch converts multiple texts to vectors.
func (e *Embedder) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = e.embed(text)
	}
	return out, nil
}

// Dimensions returns the fixed vector dimension.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *Embedder) Close() error {
	return nil
}

func (e *Embedder) embed(text string) []float64 {
	v := make([]float64, e.dimensions)
	tokens := record.Tokenize(text)
	if len(tokens) == 0 {
		return v
	}

	h := fnv.New64a()
	for _, tok := range tokens {
		h.Reset()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dimensions))
		// Sign bit keeps bucket collisions from always reinforcing.
		if sum&(1<<63) != 0 {
			v[idx] -= 1.0
		} else {
			v[idx] += 1.0
		}
	}

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range v {
			v[i] /= norm
		}
	}
	return v
}
