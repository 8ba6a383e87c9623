package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/dgraph-io/ristretto"
)

// DefaultCacheSize is the default maximum number of cached embeddings.
const DefaultCacheSize = 4096

// Cached wraps a Provider with a ristretto cache keyed by the SHA-256 of the
// input text. Repeated embeddings of identical text hit the cache instead of
// the upstream provider.
type Cached struct {
	provider Provider
	cache    *ristretto.Cache

	mu   sync.Mutex
	dims int // learned from the first successful call when provider reports 0
}

// NewCached wraps provider with a cache holding up to maxEntries vectors.
// A maxEntries <= 0 falls back to DefaultCacheSize.
func NewCached(provider Provider, maxEntries int64) (*Cached, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheSize
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	return &Cached{
		provider: provider,
		cache:    cache,
		dims:     provider.Dimensions(),
	}, nil
}

// Embed returns the cached vector for text, or calls the upstream provider
// and caches the result.
func (c *Cached) Embed(ctx context.Context, text string) ([]float64, error) {
	key := cacheKey(text)
	if v, ok := c.cache.Get(key); ok {
		if vec, ok := v.([]float64); ok {
			return vec, nil
		}
	}

	vec, err := c.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.observe(vec)
	c.cache.Set(key, vec, 1)
	return vec, nil
}

// EmbedBatch embeds texts, serving cached entries and sending only the
// misses upstream in a single batch call.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		if v, ok := c.cache.Get(cacheKey(text)); ok {
			if vec, ok := v.([]float64); ok {
				out[i] = vec
				continue
			}
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.provider.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, vec := range vecs {
		i := missIdx[j]
		out[i] = vec
		c.observe(vec)
		c.cache.Set(cacheKey(texts[i]), vec, 1)
	}
	return out, nil
}

// Dimensions returns the provider's dimension, or the dimension learned from
// the first successful embedding when the provider reports 0.
func (c *Cached) Dimensions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dims
}

// Wait blocks until buffered cache writes are applied. Ristretto admits
// entries asynchronously; callers that need read-your-writes call this.
func (c *Cached) Wait() {
	c.cache.Wait()
}

// Close closes the cache and the upstream provider.
func (c *Cached) Close() error {
	c.cache.Close()
	return c.provider.Close()
}

func (c *Cached) observe(vec []float64) {
	c.mu.Lock()
	if c.dims == 0 && len(vec) > 0 {
		c.dims = len(vec)
	}
	c.mu.Unlock()
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
