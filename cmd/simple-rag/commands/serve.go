package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/tiagosan44/simple-rag/internal/answer"
	"github.com/tiagosan44/simple-rag/internal/history"
	"github.com/tiagosan44/simple-rag/internal/logging"
	"github.com/tiagosan44/simple-rag/internal/pipeline"
	"github.com/tiagosan44/simple-rag/internal/provider"
	"github.com/tiagosan44/simple-rag/internal/server"
	"github.com/tiagosan44/simple-rag/internal/tracing"
	"github.com/tiagosan44/simple-rag/internal/vectorstore"
)

// NewServeCmd constructs the `simple-rag serve` command, which starts the
// HTTP server exposing the embed, search, and ask endpoints.
func NewServeCmd() *cobra.Command {
	var host string
	var port int
	var probeModel bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the simple-rag HTTP server",
		Long: `Start the simple-rag HTTP server on localhost.

The server exposes POST /api/embed, /api/search, and /api/ask, plus
GET /api/history, /api/health, /api/ready, and /metrics. A missing or
unreachable LLM provider degrades the ask endpoint to extractive
answers instead of failing startup.

Examples:
  simple-rag serve
  simple-rag serve --port 9090
  MODEL_PROVIDER=azure simple-rag serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			// A provider failure is a degradation, not a startup error:
			// the synthesizer falls back to extractive answers.
			chatModel, providerCfg, err := provider.NewFromEnv(ctx)
			if err != nil {
				log.Warn("llm provider unavailable, ask degrades to extractive answers",
					slog.Any("error", err),
				)
				chatModel = nil
			} else if chatModel != nil {
				log.Info("provider initialised", slog.String("provider", string(providerCfg.Backend)))
			}

			embedder, dim := buildEmbedder(log)

			store, err := buildStore(ctx, dim, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = store.Close() }()

			// Open the question history store. RAG_HISTORY_DB overrides the
			// default path (~/.simple-rag/history.db); "disabled" turns it off.
			var historyStore history.Store
			dbPath := os.Getenv("RAG_HISTORY_DB")
			if dbPath != history.Disabled {
				if dbPath == "" {
					dbPath, err = history.DefaultDBPath()
					if err != nil {
						log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					hs, hsErr := history.Open(dbPath)
					if hsErr != nil {
						log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
					} else {
						historyStore = hs
						defer func() { _ = hs.Close() }()
						log.Info("history: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("history: disabled via RAG_HISTORY_DB=disabled")
			}

			modelName := ""
			if chatModel != nil {
				modelName = providerCfg.ModelName()
			}
			synth := answer.New(chatModel, modelName, log)
			asker := pipeline.New(embedder, store, synth, log)

			pingers := []server.Pinger{
				server.NewStorePinger(store, vectorstore.BackendFromEnv()),
			}
			if probeModel && chatModel != nil {
				pingers = append(pingers, server.NewModelPinger(chatModel, string(providerCfg.Backend)))
			}

			srv, err := server.New(server.Deps{
				Embedder: embedder,
				Store:    store,
				Asker:    asker,
				History:  historyStore,
			}, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("RAG_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")
	cmd.Flags().BoolVar(&probeModel, "probe-model", false, "Include the LLM backend in /api/ready probes (consumes tokens)")

	return cmd
}
