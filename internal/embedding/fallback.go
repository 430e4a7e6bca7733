package embedding

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"math"
	"time"
)

// FallbackModel is the model name tagged on synthetic vectors so callers
// can tell a degraded embedding from a provider one.
const FallbackModel = "fallback/sha256"

// Fallback wraps a provider [Client] and degrades to a deterministic
// synthetic vector when the provider fails. The degradation is a designed
// behavior, not an error: identical text always yields an identical unit
// vector, so the pipeline keeps working offline and in tests. Each
// degradation is logged at WARN.
type Fallback struct {
	// inner is the provider client, nil when no provider is configured.
	inner Client
	// dim is the synthetic vector dimension; must match the store's.
	dim int
	// log records degradations.
	log *slog.Logger
}

// NewFallback wraps inner with synthetic-vector degradation at the given
// dimension. inner may be nil, in which case every call is synthetic.
func NewFallback(inner Client, dim int, log *slog.Logger) *Fallback {
	if log == nil {
		log = slog.Default()
	}
	return &Fallback{inner: inner, dim: dim, log: log}
}

// Embed returns the provider's embedding, or the synthetic one when the
// provider is unconfigured or fails after its own retries. It never
// returns an error: the synthetic path always succeeds.
func (f *Fallback) Embed(ctx context.Context, text string) (Result, error) {
	if f.inner != nil {
		res, err := f.inner.Embed(ctx, text)
		if err == nil {
			return res, nil
		}
		f.log.Warn("embedding: provider failed, degrading to synthetic vector",
			slog.String("fingerprint", Fingerprint(text)),
			slog.Any("error", err),
		)
	}

	return Result{
		ID:        Fingerprint(text),
		Vector:    SyntheticVector(text, f.dim),
		Model:     FallbackModel,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// SyntheticVector deterministically derives a unit-length vector of the
// given dimension from text: the SHA-256 digest bytes are expanded
// cyclically to fill dim slots, each byte mapped linearly into [-1, 1],
// and the result L2-normalized. Pure function of (text, dim).
func SyntheticVector(text string, dim int) []float32 {
	sum := sha256.Sum256([]byte(text))

	vec := make([]float32, dim)
	var norm float64
	for i := range vec {
		b := sum[i%len(sum)]
		v := float64(b)/127.5 - 1.0
		vec[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		// Unreachable for SHA-256 output, kept so the contract holds for
		// any digest.
		vec[0] = 1.0
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
