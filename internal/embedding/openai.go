package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/tiagosan44/simple-rag/internal/retry"
)

// dialTimeout bounds connection establishment to any embedding backend.
const dialTimeout = 3 * time.Second

// requestTimeout bounds the whole request/response exchange.
const requestTimeout = 10 * time.Second

// newHTTPClient returns the bounded HTTP client shared by the provider
// clients in this package. Exceeding either timeout surfaces as a
// transport error and feeds the retry/fallback policy — never a hang.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: requestTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: dialTimeout}).DialContext,
		},
	}
}

// OpenAIEmbedder implements [Client] using the OpenAI (or Azure OpenAI)
// embeddings REST API. It is safe for concurrent use.
type OpenAIEmbedder struct {
	// baseURL is the API base (e.g. "https://api.openai.com/v1" or an Azure endpoint).
	baseURL string
	// apiKey is the Bearer token (OpenAI) or api-key header value (Azure).
	apiKey string
	// model is the embedding model name (e.g. "text-embedding-3-small").
	model string
	// dimensions is the desired embedding vector length (0 = model default).
	dimensions int
	// azure selects Azure-style auth (api-key header) over Bearer token.
	azure bool
	// apiVersion is the Azure OpenAI API version query param (ignored for OpenAI).
	apiVersion string
	// policy is the bounded retry policy applied to each provider call.
	policy retry.Policy
	// client is the shared HTTP client with bounded timeouts.
	client *http.Client
}

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is the API base URL. For OpenAI: "https://api.openai.com/v1".
	// For Azure: "https://<resource>.openai.azure.com/openai".
	BaseURL string
	// APIKey is the authentication key.
	APIKey string
	// Model is the embedding model name (e.g. "text-embedding-3-small").
	Model string
	// Dimensions is the desired vector length (0 = model default).
	Dimensions int
	// Azure enables Azure OpenAI mode (api-key header + api-version param).
	Azure bool
	// APIVersion is the Azure OpenAI API version (e.g. "2025-04-01-preview").
	// Ignored when Azure is false.
	APIVersion string
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	e := &OpenAIEmbedder{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		azure:      cfg.Azure,
		apiVersion: cfg.APIVersion,
		policy:     retry.DefaultPolicy(),
		client:     newHTTPClient(),
	}
	e.policy.Retryable = transient
	return e
}

// openaiEmbedRequest is the JSON body sent to the embeddings endpoint.
type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// openaiEmbedResponse is the JSON body returned from the embeddings endpoint.
type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed converts text into its embedding, retrying transient provider
// failures under the shared bounded policy. The returned Result carries
// the provider's reported model name, falling back to the configured one.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) (Result, error) {
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

// embedOut carries one provider response through the retry helper.
type embedOut struct {
	vector []float32
	model  string
}

// embedOnce performs a single embeddings request.
func (e *OpenAIEmbedder) embedOnce(ctx context.Context, text string) ([]float32, string, error) {
	body := openaiEmbedRequest{
		Input: []string{text},
		Model: e.model,
	}
	if e.dimensions > 0 {
		body.Dimensions = e.dimensions
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("openai embedder: marshal request: %w", err)
	}

	url := e.baseURL + "/embeddings"
	if e.azure {
		url = e.baseURL + "/deployments/" + e.model + "/embeddings?api-version=" + e.apiVersion
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("openai embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.azure {
		req.Header.Set("api-key", e.apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("openai embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	var result openaiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, "", fmt.Errorf("openai embedder: decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := ""
		if result.Error != nil {
			msg = result.Error.Message
		}
		return nil, "", fmt.Errorf("openai embedder: %w", &statusError{status: resp.StatusCode, msg: msg})
	}

	if len(result.Data) != 1 {
		return nil, "", fmt.Errorf("openai embedder: expected 1 embedding, got %d", len(result.Data))
	}
	if len(result.Data[0].Embedding) == 0 {
		return nil, "", fmt.Errorf("openai embedder: empty embedding in response")
	}

	return result.Data[0].Embedding, result.Model, nil
}
