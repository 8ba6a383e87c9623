// Package embedder defines the text embedding provider interface and a
// ristretto-backed caching decorator.
//
// The engine auto-detects the embedding dimension from the first successful
// call; later mismatches are logged and the offending record skipped, never
// fatal.
package embedder

import "context"

// Provider converts text into embedding vectors.
type Provider interface {
	// Embed converts one text into a vector.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch converts multiple texts into vectors in one round trip.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the vector dimension this provider produces,
	// or 0 when it is unknown until the first call.
	Dimensions() int

	// Close releases provider resources.
	Close() error
}
