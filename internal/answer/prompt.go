// Package answer builds the grounded prompt from retrieved chunks and
// produces the final answer, calling the configured chat model with a
// deterministic extractive fallback when no model is available.
package answer

import (
	"fmt"
	"strings"

	"github.com/tiagosan44/simple-rag/internal/vectorstore"
)

// NoAnswer is returned when no context is available and no chat model
// produced content. Downstream consumers match it exactly.
const NoAnswer = "I don't know."

// maxInlineCitations bounds the inline citation markers in the
// extractive fallback answer.
const maxInlineCitations = 3

// excerptLen is the length of the source excerpt in the extractive
// fallback answer.
const excerptLen = 100

// BuildPrompt assembles the grounded prompt. The template is fixed for
// compatibility with existing deployments; chunk texts are inserted in
// store order, which encodes descending similarity.
func BuildPrompt(question string, chunks []vectorstore.Chunk) string {
	var b strings.Builder
	b.WriteString("You are an assistant. Use only the following context. If answer unknown, say \"I don't know\".\n")
	b.WriteString("Context:\n---\n")
	for _, c := range chunks {
		b.WriteString(c.Text)
		b.WriteString("\n")
	}
	b.WriteString("---\n")
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\nProvide concise answer and cite source ids.")
	return b.String()
}

// extractiveAnswer builds a deterministic answer straight from the
// retrieved chunks: inline citation markers for the leading chunks,
// then a Sources section with score and excerpt per chunk.
func extractiveAnswer(chunks []vectorstore.Chunk) string {
	if len(chunks) == 0 {
		return NoAnswer
	}
	var b strings.Builder
	b.WriteString("Based on the indexed context, see ")
	n := len(chunks)
	if n > maxInlineCitations {
		n = maxInlineCitations
	}
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "[%s]", chunks[i].ID)
	}
	b.WriteString(".\n\nSources:\n")
	for _, c := range chunks {
		fmt.Fprintf(&b, "- %s (score %.2f): %s\n", c.ID, c.Score, excerpt(c.Text))
	}
	return b.String()
}

// excerpt truncates on rune boundaries so multi-byte text never ends
// in a broken sequence.
func excerpt(text string) string {
	r := []rune(text)
	if len(r) <= excerptLen {
		return text
	}
	return string(r[:excerptLen])
}
