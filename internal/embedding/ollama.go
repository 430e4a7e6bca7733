package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tiagosan44/simple-rag/internal/retry"
)

// OllamaEmbedder implements [Client] using the Ollama /api/embed endpoint.
// It is safe for concurrent use. No API key is required — Ollama runs locally.
type OllamaEmbedder struct {
	// host is the Ollama server base URL (e.g. "http://localhost:11434").
	host string
	// model is the embedding model name (e.g. "nomic-embed-text").
	model string
	// policy is the bounded retry policy applied to each provider call.
	policy retry.Policy
	// client is the shared HTTP client with bounded timeouts.
	client *http.Client
}

// OllamaConfig holds the settings for constructing an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the Ollama server base URL (e.g. "http://localhost:11434").
	Host string
	// Model is the embedding model name (e.g. "nomic-embed-text").
	Model string
}

// NewOllamaEmbedder constructs an OllamaEmbedder from the given config.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	e := &OllamaEmbedder{
		host:   cfg.Host,
		model:  cfg.Model,
		policy: retry.DefaultPolicy(),
		client: newHTTPClient(),
	}
	e.policy.Retryable = transient
	return e
}

// ollamaEmbedRequest is the JSON body sent to the Ollama /api/embed endpoint.
type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// ollamaEmbedResponse is the JSON body returned from the Ollama /api/embed endpoint.
type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed converts text into its embedding, retrying transient failures
// under the shared bounded policy.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) (Result, error) {
	out, err := retry.Do(ctx, e.policy, func() (embedOut, error) {
		vec, model, embedErr := e.embedOnce(ctx, text)
		return embedOut{vector: vec, model: model}, embedErr
	})
	if err != nil {
		return Result{}, err
	}
	if out.model == "" {
		out.model = e.model
	}
	return Result{
		ID:        Fingerprint(text),
		Vector:    out.vector,
		Model:     out.model,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// embedOnce performs a single /api/embed request.
func (e *OllamaEmbedder) embedOnce(ctx context.Context, text string) ([]float32, string, error) {
	payload, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: []string{text}})
	if err != nil {
		return nil, "", fmt.Errorf("ollama embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("ollama embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("ollama embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, "", fmt.Errorf("ollama embedder: decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("ollama embedder: %w", &statusError{status: resp.StatusCode, msg: result.Error})
	}

	if len(result.Embeddings) != 1 {
		return nil, "", fmt.Errorf("ollama embedder: expected 1 embedding, got %d", len(result.Embeddings))
	}
	if len(result.Embeddings[0]) == 0 {
		return nil, "", fmt.Errorf("ollama embedder: empty embedding in response")
	}

	return result.Embeddings[0], result.Model, nil
}
