// Package llm provides access to a local language model for tool
// evaluation and response generation, over HTTP (Ollama) or a local CLI.
package llm

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the model backend could not be reached. The
// pipeline treats it as a degradation, never a fatal error.
var ErrUnavailable = errors.New("llm unavailable")

// Request is a single completion request.
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Client is a text completion backend.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	Available(ctx context.Context) bool
	ModelName() string
}

// Verdict is the model's judgment on whether a candidate tool should
// handle a query.
type Verdict struct {
	Approved   bool
	Confidence float64
	Reasoning  string
}

// Exchange is a past question with the answer it received, used to
// ground conversational responses.
type Exchange struct {
	Question string
	Answer   string
}
