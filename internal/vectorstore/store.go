// Package vectorstore manages the named collection of (id, vector,
// payload) points behind the retrieval pipeline. The [Store] interface
// has three implementations selected by configuration: a Qdrant REST
// client (default), a Qdrant gRPC client, and an in-memory brute-force
// cosine store for tests and offline demos.
package vectorstore

import (
	"context"
	"fmt"
	"sort"
)

// DefaultBatchSize is the number of points sent per upsert request so a
// single large ingestion never produces an unbounded payload.
const DefaultBatchSize = 64

// Well-known payload keys written by ingestion and read back by search.
const (
	PayloadKeyText       = "text"
	PayloadKeyChunkIndex = "chunk_index"
	PayloadKeySource     = "source"
)

// Point is an indexed vector with its payload. Points are created during
// ingestion and immutable after upsert; re-upserting an id replaces it.
type Point struct {
	// ID is the stable point identifier (UUID form for Qdrant backends).
	ID string
	// Vector is the embedding; its length must match the collection.
	Vector []float32
	// Payload holds the scalar metadata stored alongside the vector.
	Payload Payload
}

// Chunk is a unit of retrievable text returned by Search or GetByID.
// Score is a normalized similarity in [0, 1] (1.0 = identical) and is
// never mutated after the store produces it.
type Chunk struct {
	// ID is the point identifier.
	ID string
	// Text is the chunk's raw text.
	Text string
	// Score is the normalized similarity.
	Score float32
	// ChunkIndex is the position of this chunk within its source
	// document, nil when the payload does not carry one.
	ChunkIndex *int
	// Source is the origin URI of the chunk, empty when unknown.
	Source string
}

// Store is the vector-store contract consumed by the ask pipeline and
// the ingestion batch job. Implementations must be safe to call from
// multiple goroutines; Init is expected to run once at startup before
// requests are served.
type Store interface {
	// Init idempotently prepares the collection at the given dimension.
	// An existing collection with a different dimension fails with a
	// *ragerr.VectorStoreUnavailableError in strict mode, or is deleted
	// and recreated under the force-recreate configuration flag.
	Init(ctx context.Context, dim int) error

	// Upsert stores points, replacing by id. Empty input is a no-op.
	// Points with an empty vector are rejected before anything is sent.
	// A batch failure aborts the remaining batches.
	Upsert(ctx context.Context, points []Point) error

	// Search returns up to topK chunks ordered by descending similarity,
	// scores rescaled into [0, 1]. An empty collection yields an empty
	// slice, not an error.
	Search(ctx context.Context, vector []float32, topK int) ([]Chunk, error)

	// GetByID looks up a point by exact id. Absent points return
	// (nil, nil). Found chunks carry score 1.0 by convention since no
	// similarity comparison is performed.
	GetByID(ctx context.Context, id string) (*Chunk, error)

	// Ping reports backend reachability for readiness probes.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// NormalizeScore rescales a raw cosine similarity from the store's
// native [-1, 1] range into [0, 1], clamping stray values so the score
// invariant holds regardless of backend rounding.
func NormalizeScore(raw float32) float32 {
	s := (raw + 1) / 2
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// validatePoints rejects points with an empty vector before any request
// is sent, so a bad batch never silently corrupts the collection.
func validatePoints(points []Point) error {
	for _, p := range points {
		if len(p.Vector) == 0 {
			return fmt.Errorf("vectorstore: point %q has an empty vector", p.ID)
		}
	}
	return nil
}

// chunkFromPayload builds a Chunk from a point id, score, and payload,
// reading the well-known keys and ignoring everything else.
func chunkFromPayload(id string, score float32, p Payload) Chunk {
	c := Chunk{ID: id, Score: score}
	if v, ok := p[PayloadKeyText]; ok {
		c.Text, _ = v.AsString()
	}
	if v, ok := p[PayloadKeySource]; ok {
		c.Source, _ = v.AsString()
	}
	if v, ok := p[PayloadKeyChunkIndex]; ok {
		if n, isNum := v.AsNumber(); isNum {
			idx := int(n)
			c.ChunkIndex = &idx
		}
	}
	return c
}

// sortChunksByScore orders chunks by descending similarity, preserving
// input order for equal scores.
func sortChunksByScore(chunks []Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})
}
