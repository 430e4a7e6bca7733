package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tiagosan44/simple-rag/internal/answer"
	"github.com/tiagosan44/simple-rag/internal/embedding"
	"github.com/tiagosan44/simple-rag/internal/history"
	"github.com/tiagosan44/simple-rag/internal/pipeline"
	"github.com/tiagosan44/simple-rag/internal/vectorstore"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its
	// handlers. If nil, slog.Default is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by
	// GET /api/ready. If empty, /api/ready returns 200 with no checks.
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on
	// rate-limited endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to
	// 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/*
	// routes. If empty, authentication is disabled (development mode).
	APIKey string
	// Registry receives the server's Prometheus metrics. If nil a
	// fresh registry is created; tests inject their own to stay
	// hermetic.
	Registry *prometheus.Registry
}

// asker is the interface handleAsk calls; *pipeline.Pipeline satisfies
// it and tests inject a fake.
type asker interface {
	Ask(ctx context.Context, question string, topK int, temperature float32) (*pipeline.AskResult, error)
}

// Deps are the core components the server exposes over HTTP.
type Deps struct {
	// Embedder serves /api/embed and reports cache statistics.
	Embedder *embedding.Cache
	// Store serves /api/search.
	Store vectorstore.Store
	// Asker serves /api/ask.
	Asker asker
	// History serves /api/history and records answered questions.
	// Nil disables both.
	History history.Store
}

// Server is the HTTP boundary over the ask pipeline and its parts.
type Server struct {
	cfg        *Config
	deps       Deps
	httpServer *http.Server
	log        *slog.Logger
	pingers    []Pinger
	metrics    *serverMetrics
	registry   *prometheus.Registry
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// embedRequest is the JSON body for POST /api/embed.
type embedRequest struct {
	// Text is the input to embed.
	Text string `json:"text"`
	// Debug includes the raw vector in the response when true.
	Debug bool `json:"debug,omitempty"`
}

// embedResponse is the JSON response for POST /api/embed.
type embedResponse struct {
	// EmbeddingID is the content fingerprint of the input text.
	EmbeddingID string `json:"embedding_id"`
	// VectorDim is the embedding dimension.
	VectorDim int `json:"vector_dim"`
	// Vector is included only when the request set debug.
	Vector []float32 `json:"vector,omitempty"`
	// Model is the model that produced the embedding.
	Model string `json:"model"`
	// Cached reports whether the result came from the embedding cache.
	Cached bool `json:"cached"`
}

// searchRequest is the JSON body for POST /api/search.
type searchRequest struct {
	// Query is the similarity search text.
	Query string `json:"query"`
	// TopK is the maximum number of results (default 5).
	TopK int `json:"top_k,omitempty"`
}

// searchResponse is the JSON response for POST /api/search.
type searchResponse struct {
	Results []chunkDTO `json:"results"`
}

// chunkDTO is the wire form of a retrieved chunk.
type chunkDTO struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
	ChunkIndex *int    `json:"chunk_index,omitempty"`
	Source     string  `json:"source,omitempty"`
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
	// TopK is the retrieval depth (default 4).
	TopK int `json:"top_k,omitempty"`
	// Temperature controls generation randomness (default 0.0).
	Temperature float32 `json:"temperature,omitempty"`
}

// askResponse is the JSON response for POST /api/ask.
type askResponse struct {
	Answer            string        `json:"answer"`
	SourceChunks      []chunkDTO    `json:"source_chunks"`
	RawProviderOutput string        `json:"raw_provider_output"`
	Prompt            string        `json:"prompt"`
	LatencyMS         int64         `json:"latency_ms"`
	Model             string        `json:"model,omitempty"`
	Usage             *answer.Usage `json:"usage,omitempty"`
}

// historyResponse is the JSON response for GET /api/history.
type historyResponse struct {
	Entries []history.Entry `json:"entries"`
}

// chunkDTOs converts store chunks into their wire form.
func chunkDTOs(chunks []vectorstore.Chunk) []chunkDTO {
	out := make([]chunkDTO, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, chunkDTO{
			ID:         c.ID,
			Text:       c.Text,
			Score:      c.Score,
			ChunkIndex: c.ChunkIndex,
			Source:     c.Source,
		})
	}
	return out
}
