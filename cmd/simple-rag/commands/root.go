// Package commands defines all Cobra CLI commands for the simple-rag binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tiagosan44/simple-rag/internal/audit"
	"github.com/tiagosan44/simple-rag/internal/config"
	"github.com/tiagosan44/simple-rag/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "simple-rag",
		Short: "simple-rag — retrieval-augmented question answering over your documents",
		Long: `simple-rag is a local-first retrieval-augmented generation service.

It embeds documents into a Qdrant vector store, retrieves the most
relevant chunks for a question, and synthesizes a grounded answer with
an LLM — degrading to deterministic synthetic embeddings and extractive
answers when no provider is reachable.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.simple-rag/config.yaml).
See 'simple-rag --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A .env file in the working directory is optional; real env
			// vars keep precedence because Load never overwrites them.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.simple-rag/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewVersionCmd(),
	)

	return root
}
