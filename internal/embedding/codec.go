package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const cacheTTL = 10 * time.Minute

// Codec is the validating front door for embedding generation. It rejects
// unusable input, enforces the generator's dimension on every vector and
// caches recent encodings. All pipeline code encodes through a Codec, never
// through a Generator directly.
type Codec struct {
	gen     Generator
	maxText int
	cache   *expirable.LRU[string, []float32]
	logger  *slog.Logger
}

// NewCodec wraps a generator. A cacheSize of 0 disables caching.
func NewCodec(gen Generator, maxText, cacheSize int, logger *slog.Logger) *Codec {
	var cache *expirable.LRU[string, []float32]
	if cacheSize > 0 {
		cache = expirable.NewLRU[string, []float32](cacheSize, nil, cacheTTL)
	}

	return &Codec{
		gen:     gen,
		maxText: maxText,
		cache:   cache,
		logger:  logger,
	}
}

// Encode returns the embedding for text. Empty and oversized input fail;
// identical input always yields an identical vector.
func (c *Codec) Encode(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if len(text) > c.maxText {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrTextTooLong, len(text), c.maxText)
	}

	if c.cache != nil {
		if vec, ok := c.cache.Get(text); ok {
			out := make([]float32, len(vec))
			copy(out, vec)
			return out, nil
		}
	}

	vec, err := c.gen.Generate(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}
	if len(vec) != c.gen.Dimension() {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vec), c.gen.Dimension())
	}

	if c.cache != nil {
		// The cache keeps its own copy so callers may modify the result.
		stored := make([]float32, len(vec))
		copy(stored, vec)
		c.cache.Add(text, stored)
	}

	return vec, nil
}

// Dimension returns the fixed dimensionality of encoded vectors.
func (c *Codec) Dimension() int {
	return c.gen.Dimension()
}

// ModelName identifies the underlying embedding model.
func (c *Codec) ModelName() string {
	return c.gen.ModelName()
}
