package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tiagosan44/simple-rag/internal/ingestion"
	"github.com/tiagosan44/simple-rag/internal/logging"
)

// NewIngestCmd constructs the `simple-rag ingest` command, which fetches
// documents, chunks them, and indexes the chunks into the vector store.
func NewIngestCmd() *cobra.Command {
	var urls []string
	var chunkSize int
	var chunkOverlap int

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest documents into the vector store",
		Long: `Fetch documents, split them into overlapping chunks, embed each chunk,
and upsert the chunks into the vector store.

Sources can be HTTP(S) URLs or local file paths. Chunk IDs are derived
deterministically from the source and chunk index, so re-ingesting the
same source updates its chunks in place.

Required environment variables:
  VECTOR_BACKEND       rest, grpc, or memory (default: rest)
  QDRANT_URL           Qdrant REST endpoint (default: http://localhost:6333)
  QDRANT_COLLECTION    Collection name (default: documents)
  MODEL_PROVIDER       Embedding backend: ollama, openai, azure, none (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)

Examples:
  simple-rag ingest --url https://docs.example.com/refund-policy
  simple-rag ingest --url ./docs/handbook.txt --chunk-size 500 --chunk-overlap 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			if len(urls) == 0 {
				return fmt.Errorf("ingest: at least one --url is required")
			}

			embedder, dim := buildEmbedder(log)

			store, err := buildStore(ctx, dim, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = store.Close() }()

			p, err := ingestion.NewPipeline(embedder, store, &ingestion.Config{
				ChunkSize:    chunkSize,
				ChunkOverlap: chunkOverlap,
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			sources := make([]ingestion.Source, 0, len(urls))
			for _, u := range urls {
				sources = append(sources, ingestion.Source{URL: u})
			}

			log.Info("starting ingestion", slog.Int("sources", len(sources)))
			start := time.Now()

			if err := p.Ingest(ctx, sources, func(msg string) {
				log.Info(msg)
			}); err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}

			log.Info("ingestion complete",
				slog.Int("sources", len(sources)),
				slog.Duration("elapsed", time.Since(start)),
			)
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "Document URL or file path to ingest (repeatable)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Chunk size in characters (default 1000)")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 0, "Chunk overlap in characters (default 100)")

	return cmd
}
