package embedding

import (
	"context"
	"errors"
)

// Generator produces fixed-dimension embedding vectors. Implementations
// must be deterministic for identical input so persisted vectors stay
// comparable across restarts.
type Generator interface {
	Generate(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	// ModelName identifies the embedding model. Persisted indexes are only
	// valid for the model that produced them.
	ModelName() string
}

var (
	// ErrEmptyText is returned for input with no usable content.
	ErrEmptyText = errors.New("embedding: empty text")
	// ErrTextTooLong is returned when input exceeds the configured limit.
	// Truncation is the caller's decision, never the codec's.
	ErrTextTooLong = errors.New("embedding: text too long")
)
