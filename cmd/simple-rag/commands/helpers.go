package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tiagosan44/simple-rag/internal/embedding"
	"github.com/tiagosan44/simple-rag/internal/vectorstore"
)

// buildEmbedder assembles the embedding stack shared by serve, ask, and
// ingest: provider client → synthetic fallback → LRU cache. A provider
// configuration error is non-fatal; the stack then runs on synthetic
// vectors only, which keeps the service usable offline.
func buildEmbedder(log *slog.Logger) (*embedding.Cache, int) {
	inner, err := embedding.NewFromEnv()
	if err != nil {
		log.Warn("embedding: provider unavailable, running on synthetic vectors only",
			slog.Any("error", err),
		)
		inner = nil
	}

	dim := embedding.DefaultDimensions(embedding.BackendFromEnv())
	fallback := embedding.NewFallback(inner, dim, log)
	cache := embedding.NewCache(fallback, embedding.DefaultCacheSize, embedding.DefaultCacheTTL)
	return cache, dim
}

// buildStore connects the configured vector store backend and runs the
// startup collection check at the given dimension.
func buildStore(ctx context.Context, dim int, log *slog.Logger) (vectorstore.Store, error) {
	store, err := vectorstore.NewFromEnv(log)
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	if err := store.Init(ctx, dim); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("vector store init: %w", err)
	}
	return store, nil
}
