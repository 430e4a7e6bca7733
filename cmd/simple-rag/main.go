// Command simple-rag is the entry point for the retrieval-augmented
// question answering service. It provides a CLI interface (via Cobra)
// and an HTTP server exposing the embed, search, and ask operations.
package main

import (
	"fmt"
	"os"

	"github.com/tiagosan44/simple-rag/cmd/simple-rag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
