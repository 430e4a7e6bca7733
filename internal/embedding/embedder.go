// Package embedding converts text into dense vector embeddings for
// similarity search. Provider clients (OpenAI, Azure OpenAI, Ollama) talk
// to their backends via plain HTTP — no additional SDK dependencies are
// required. The provider clients are wrapped by [Fallback], which degrades
// to a deterministic synthetic vector when the provider is unreachable,
// and by [Cache], which memoizes results with LRU eviction and a TTL.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Result is an immutable embedding produced for one text input.
type Result struct {
	// ID is the content fingerprint of the embedded text.
	ID string
	// Vector is the embedding. Its length is fixed per deployment and
	// must match the vector store's configured dimension.
	Vector []float32
	// Model is the model that produced the vector, as reported by the
	// provider (or the configured default when the provider omits it).
	Model string
	// CreatedAt is when the vector was computed, UTC.
	CreatedAt time.Time
}

// Client is the interface for converting a single text into its embedding.
// Implementations must be safe to call from multiple goroutines.
type Client interface {
	// Embed converts text into its embedding.
	Embed(ctx context.Context, text string) (Result, error)
}

// Fingerprint returns the stable content identifier for text: the first
// 16 bytes of its SHA-256 digest, hex encoded. It doubles as the cache key.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:16])
}

// statusError is a non-2xx provider response. It carries the status code
// so the retry predicate can distinguish transient (429/5xx) failures
// from permanent ones (4xx).
type statusError struct {
	status int
	msg    string
}

func (e *statusError) Error() string {
	if e.msg != "" {
		return fmt.Sprintf("HTTP %d: %s", e.status, e.msg)
	}
	return fmt.Sprintf("HTTP %d", e.status)
}

// transient reports whether err is worth retrying: network-level failures
// and rate-limit/server statuses are transient, everything else is not.
func transient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status == 429 || se.status >= 500
	}
	// Transport errors (connection refused, timeout, DNS) have no status.
	return true
}
