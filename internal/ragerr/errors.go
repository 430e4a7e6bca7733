// Package ragerr defines the error taxonomy shared by the retrieval
// pipeline and the HTTP boundary. Each component raises its own kind;
// the orchestrator never wraps or translates, so the boundary layer can
// map the first failure to the correct HTTP status with [errors.As].
package ragerr

import (
	"fmt"
	"net/http"
)

// Code identifies an error kind in API responses and logs.
type Code string

const (
	// CodeValidation marks a malformed or empty required request field.
	CodeValidation Code = "VALIDATION_ERROR"
	// CodeEmbeddingProvider marks an explicit embedding-provider failure.
	CodeEmbeddingProvider Code = "EMBEDDING_PROVIDER_UNAVAILABLE"
	// CodeVectorStore marks a vector-store transport/server error or a
	// dimension mismatch in strict mode.
	CodeVectorStore Code = "VECTOR_STORE_UNAVAILABLE"
	// CodeLLMProvider marks an explicit chat-provider failure after
	// retry exhaustion.
	CodeLLMProvider Code = "LLM_PROVIDER_UNAVAILABLE"
	// CodeInternal marks anything unclassified.
	CodeInternal Code = "INTERNAL_ERROR"
)

// HTTPStatus maps an error code to the HTTP status rendered by the
// boundary layer.
func HTTPStatus(c Code) int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeEmbeddingProvider, CodeVectorStore, CodeLLMProvider:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError reports a malformed or empty required request field.
// It is detected at the boundary before any core logic runs.
type ValidationError struct {
	// Field is the name of the offending request field.
	Field string
	// Reason describes why the field was rejected.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: field %q %s", e.Field, e.Reason)
}

// Details returns the structured hint rendered in the error envelope.
func (e *ValidationError) Details() map[string]any {
	return map[string]any{"field": e.Field, "reason": e.Reason}
}

// EmbeddingProviderUnavailableError reports that the embedding provider
// failed and no vector could be produced by any strategy. In the default
// degradation policy the synthetic fallback always succeeds, so this
// error is reserved for future strict modes and boundary mapping.
type EmbeddingProviderUnavailableError struct {
	// Reason is a short human-readable failure summary.
	Reason string
	// Err is the underlying provider error, if any.
	Err error
}

func (e *EmbeddingProviderUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embedding provider unavailable: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("embedding provider unavailable: %s", e.Reason)
}

func (e *EmbeddingProviderUnavailableError) Unwrap() error { return e.Err }

// Details returns the structured hint rendered in the error envelope.
func (e *EmbeddingProviderUnavailableError) Details() map[string]any {
	return map[string]any{"reason": e.Reason}
}

// VectorStoreUnavailableError reports a vector-store transport error,
// non-2xx response, malformed response, or a strict-mode dimension
// mismatch. Body is truncated before it reaches this type so unbounded
// payloads never leak into logs or API responses.
type VectorStoreUnavailableError struct {
	// Op is the store operation that failed (init, upsert, search, get).
	Op string
	// Status is the HTTP status or gRPC code reported by the store,
	// zero when the failure was transport-level.
	Status int
	// Body is the truncated response body, empty for transport errors.
	Body string
	// ExpectedDim and ActualDim are set only for dimension mismatches.
	ExpectedDim int
	ActualDim   int
	// Err is the underlying transport error, if any.
	Err error
}

func (e *VectorStoreUnavailableError) Error() string {
	if e.ExpectedDim != 0 || e.ActualDim != 0 {
		return fmt.Sprintf("vector store unavailable: %s: dimension mismatch: collection has %d, expected %d",
			e.Op, e.ActualDim, e.ExpectedDim)
	}
	if e.Err != nil {
		return fmt.Sprintf("vector store unavailable: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("vector store unavailable: %s: status %d: %s", e.Op, e.Status, e.Body)
}

func (e *VectorStoreUnavailableError) Unwrap() error { return e.Err }

// Details returns the structured hint rendered in the error envelope.
func (e *VectorStoreUnavailableError) Details() map[string]any {
	d := map[string]any{"operation": e.Op}
	if e.Status != 0 {
		d["status"] = e.Status
	}
	if e.Body != "" {
		d["body"] = e.Body
	}
	if e.ExpectedDim != 0 || e.ActualDim != 0 {
		d["expected_dim"] = e.ExpectedDim
		d["actual_dim"] = e.ActualDim
	}
	return d
}

// LLMProviderUnavailableError reports an explicit chat-provider error
// still standing after retry exhaustion. An unconfigured provider or an
// empty completion is NOT this error — those degrade to the extractive
// fallback answer instead.
type LLMProviderUnavailableError struct {
	// Reason is a short human-readable failure summary.
	Reason string
	// Err is the underlying provider error, if any.
	Err error
}

func (e *LLMProviderUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm provider unavailable: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("llm provider unavailable: %s", e.Reason)
}

func (e *LLMProviderUnavailableError) Unwrap() error { return e.Err }

// Details returns the structured hint rendered in the error envelope.
func (e *LLMProviderUnavailableError) Details() map[string]any {
	return map[string]any{"reason": e.Reason}
}
