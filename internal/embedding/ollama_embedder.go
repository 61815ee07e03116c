package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	embedRequestTimeout = 30 * time.Second
	probeTimeout        = 5 * time.Second
	embedMaxRetries     = 2
)

// OllamaEmbedder generates embeddings through an Ollama-compatible HTTP
// endpoint. The service owns the model; the configured dimension is
// verified against every response.
type OllamaEmbedder struct {
	baseURL    string
	model      string
	dimension  int
	httpClient *http.Client
	probe      *http.Client
	logger     *slog.Logger
}

// NewOllamaEmbedder creates an HTTP embedding generator.
func NewOllamaEmbedder(baseURL, model string, dimension int, logger *slog.Logger) *OllamaEmbedder {
	return &OllamaEmbedder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dimension:  dimension,
		httpClient: &http.Client{Timeout: embedRequestTimeout},
		probe:      &http.Client{Timeout: probeTimeout},
		logger:     logger,
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Generate requests an embedding, retrying transient failures.
func (e *OllamaEmbedder) Generate(ctx context.Context, text string) ([]float32, error) {
	var lastErr error

	for attempt := 0; attempt <= embedMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
			e.logger.Debug("Retrying embedding request", "attempt", attempt)
		}

		vec, retryable, err := e.generateOnce(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	return nil, fmt.Errorf("ollama embedding failed: %w", lastErr)
}

func (e *OllamaEmbedder) generateOnce(ctx context.Context, text string) ([]float32, bool, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		err := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		return nil, resp.StatusCode >= 500, err
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, false, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(parsed.Embedding) != e.dimension {
		return nil, false, fmt.Errorf("model %s returned %d dimensions, configured for %d",
			e.model, len(parsed.Embedding), e.dimension)
	}

	vec := make([]float32, len(parsed.Embedding))
	for i, v := range parsed.Embedding {
		vec[i] = float32(v)
	}

	return vec, false, nil
}

// Available reports whether the embedding service responds, using a short
// timeout so startup never hangs on a missing service.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := e.probe.Do(req)
	if err != nil {
		e.logger.Debug("Embedding service unavailable", "url", e.baseURL, "error", err)
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// Dimension returns the configured dimensionality.
func (e *OllamaEmbedder) Dimension() int {
	return e.dimension
}

// ModelName identifies the remote model.
func (e *OllamaEmbedder) ModelName() string {
	return e.model
}
