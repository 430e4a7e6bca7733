// Package pipeline composes the embedding cache, vector store, and
// answer synthesizer into the end-to-end question-answering flow.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/tiagosan44/simple-rag/internal/answer"
	"github.com/tiagosan44/simple-rag/internal/embedding"
	"github.com/tiagosan44/simple-rag/internal/vectorstore"
)

// DefaultTopK is the retrieval depth when the caller does not choose one.
const DefaultTopK = 4

// Embedder is the embedding dependency; satisfied by *embedding.Cache.
type Embedder interface {
	Embed(ctx context.Context, text string) (embedding.Result, error)
}

// Synthesizer is the answer dependency; satisfied by *answer.Synthesizer.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, chunks []vectorstore.Chunk, temperature float32) (answer.Result, string, error)
}

// AskResult is the full response envelope for one question. Model and
// Usage are empty when the extractive fallback produced the answer.
type AskResult struct {
	Answer            string
	SourceChunks      []vectorstore.Chunk
	RawProviderOutput string
	Prompt            string
	LatencyMS         int64
	Model             string
	Usage             *answer.Usage
}

// Pipeline is the ask orchestrator. It holds no per-request state and
// is safe for concurrent use.
type Pipeline struct {
	embedder Embedder
	store    vectorstore.Store
	synth    Synthesizer
	log      *slog.Logger
}

// New builds a Pipeline.
func New(embedder Embedder, store vectorstore.Store, synth Synthesizer, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{embedder: embedder, store: store, synth: synth, log: log}
}

// Ask runs the sequential question-answering flow: embed the question,
// retrieve topK chunks, synthesize an answer. Component errors
// propagate unchanged so the HTTP boundary can map them to the right
// status; no retries happen at this layer.
func (p *Pipeline) Ask(ctx context.Context, question string, topK int, temperature float32) (*AskResult, error) {
	start := time.Now()
	if topK <= 0 {
		topK = DefaultTopK
	}

	emb, err := p.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}

	chunks, err := p.store.Search(ctx, emb.Vector, topK)
	if err != nil {
		return nil, err
	}

	res, prompt, err := p.synth.Synthesize(ctx, question, chunks, temperature)
	if err != nil {
		return nil, err
	}

	latency := time.Since(start).Milliseconds()
	p.log.Info("ask completed",
		"top_k", topK,
		"chunks", len(chunks),
		"model", res.Model,
		"latency_ms", latency,
	)
	return &AskResult{
		Answer:            res.Answer,
		SourceChunks:      chunks,
		RawProviderOutput: res.RawOutput,
		Prompt:            prompt,
		LatencyMS:         latency,
		Model:             res.Model,
		Usage:             res.Usage,
	}, nil
}
