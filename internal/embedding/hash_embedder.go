package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"strings"
	"unicode"
)

// HashEmbedder maps text into a fixed number of buckets with the hashing
// trick: each token adds its term frequency to the bucket chosen by an
// FNV-1a hash, signed by a high bit of the same hash so unrelated
// collisions partially cancel. Vectors are L2 normalized. Works entirely
// in memory with no vocabulary to train or persist, which keeps vectors
// stable across restarts.
type HashEmbedder struct {
	dimension int
	logger    *slog.Logger
}

// NewHashEmbedder creates a hashing-based embedding generator.
func NewHashEmbedder(dimension int, logger *slog.Logger) *HashEmbedder {
	return &HashEmbedder{
		dimension: dimension,
		logger:    logger,
	}
}

// Generate creates an embedding vector for the given text.
func (e *HashEmbedder) Generate(_ context.Context, text string) ([]float32, error) {
	words := tokenize(text)
	if len(words) == 0 {
		// Stopword-only input still deserves a stable vector.
		words = strings.Fields(strings.ToLower(text))
	}
	if len(words) == 0 {
		return nil, ErrEmptyText
	}

	embedding := make([]float32, e.dimension)
	total := float32(len(words))

	termFreq := make(map[string]int, len(words))
	for _, word := range words {
		termFreq[word]++
	}

	for word, count := range termFreq {
		h := fnv.New64a()
		h.Write([]byte(word))
		sum := h.Sum64()

		bucket := int(sum % uint64(e.dimension))
		sign := float32(1)
		if (sum>>32)&1 == 1 {
			sign = -1
		}

		embedding[bucket] += sign * float32(count) / total
	}

	return normalize(embedding), nil
}

// Dimension returns the dimensionality of generated embeddings.
func (e *HashEmbedder) Dimension() int {
	return e.dimension
}

// ModelName identifies the hashing scheme and dimension.
func (e *HashEmbedder) ModelName() string {
	return fmt.Sprintf("hash-fnv1a-%d", e.dimension)
}

// tokenize converts text to lowercase tokens, dropping punctuation,
// single characters and common stop words.
func tokenize(text string) []string {
	text = strings.ToLower(text)

	words := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})

	filtered := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) > 1 && !stopWords[word] {
			filtered = append(filtered, word)
		}
	}

	return filtered
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "from": true,
	"as": true, "is": true, "was": true, "are": true, "were": true,
	"be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true,
	"would": true, "could": true, "should": true, "may": true, "might": true,
	"can": true, "this": true, "that": true, "these": true, "those": true,
}

// normalize performs L2 normalization on the embedding.
func normalize(embedding []float32) []float32 {
	var norm float32
	for _, val := range embedding {
		norm += val * val
	}
	norm = float32(math.Sqrt(float64(norm)))

	if norm > 0 {
		normalized := make([]float32, len(embedding))
		for i, val := range embedding {
			normalized[i] = val / norm
		}
		return normalized
	}

	return embedding
}
