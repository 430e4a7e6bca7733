package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tiagosan44/simple-rag/internal/answer"
	"github.com/tiagosan44/simple-rag/internal/logging"
	"github.com/tiagosan44/simple-rag/internal/pipeline"
	"github.com/tiagosan44/simple-rag/internal/provider"
)

// NewAskCmd constructs the `simple-rag ask` command, which answers a single
// question against the indexed documents and prints the result to stdout.
func NewAskCmd() *cobra.Command {
	var topK int
	var temperature float32
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question against the indexed documents",
		Long: `Answer a natural language question using retrieval-augmented generation.

The question is embedded, the most similar chunks are retrieved from the
vector store, and an answer is synthesized from that context. Without a
reachable LLM provider the answer is extractive: the top chunks are cited
directly.

Examples:
  simple-rag ask "what is the refund window?"
  simple-rag ask --top-k 8 "how do I rotate the API key?"
  MODEL_PROVIDER=none simple-rag ask "which regions are supported?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			chatModel, providerCfg, err := provider.NewFromEnv(ctx)
			if err != nil {
				log.Warn("llm provider unavailable, answering extractively", slog.Any("error", err))
				chatModel = nil
			}

			embedder, dim := buildEmbedder(log)

			store, err := buildStore(ctx, dim, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer func() { _ = store.Close() }()

			modelName := ""
			if chatModel != nil {
				modelName = providerCfg.ModelName()
			}
			synth := answer.New(chatModel, modelName, log)
			asker := pipeline.New(embedder, store, synth, log)

			result, err := asker.Ask(ctx, args[0], topK, temperature)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(result.Answer)
			if showSources && len(result.SourceChunks) > 0 {
				fmt.Println("\nRetrieved chunks:")
				for _, c := range result.SourceChunks {
					fmt.Printf("  %s (score %.2f) %s\n", c.ID, c.Score, c.Source)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (default 4)")
	cmd.Flags().Float32VarP(&temperature, "temperature", "t", 0, "Generation temperature in [0, 1]")
	cmd.Flags().BoolVar(&showSources, "sources", false, "Print the retrieved chunks after the answer")

	return cmd
}
