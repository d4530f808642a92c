package embed

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"sync"
)

// Embedder turns text into fixed-size vectors. Implementations must return
// identical vectors for identical input within floating-point tolerance.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	ModelID() string
	Close() error
}

// Cached memoizes vectors in memory, keyed by model and text.
type Cached struct {
	inner Embedder
	mu    sync.RWMutex
	memo  map[string][]float32
}

func NewCached(inner Embedder) *Cached {
	return &Cached{inner: inner, memo: map[string][]float32{}}
}

func (c *Cached) ModelID() string { return c.inner.ModelID() }

func (c *Cached) Close() error {
	c.mu.Lock()
	c.memo = map[string][]float32{}
	c.mu.Unlock()
	return c.inner.Close()
}

func (c *Cached) EmbedText(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if vec, ok := c.get(key); ok {
		return vec, nil
	}
	vec, err := c.inner.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	c.put(key, vec)
	return cloneVector(vec), nil
}

// EmbedTexts forwards only the texts not seen before, in one batch.
func (c *Cached) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if vec, ok := c.get(c.cacheKey(t)); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	vecs, err := c.inner.EmbedTexts(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, vec := range vecs {
		c.put(c.cacheKey(missing[j]), vec)
		out[missingIdx[j]] = cloneVector(vec)
	}
	return out, nil
}

func (c *Cached) cacheKey(text string) string {
	h := sha1.New()
	_, _ = io.WriteString(h, c.inner.ModelID())
	_, _ = io.WriteString(h, "|")
	_, _ = io.WriteString(h, text)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cached) get(key string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vec, ok := c.memo[key]
	if !ok {
		return nil, false
	}
	return cloneVector(vec), true
}

func (c *Cached) put(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memo[key] = cloneVector(vec)
}

func cloneVector(vec []float32) []float32 {
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
