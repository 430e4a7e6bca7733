package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/tiagosan44/simple-rag/internal/ragerr"
)

// MemoryStore is an in-process brute-force cosine store. It exists for
// tests and offline demos, so exactness matters more than speed.
type MemoryStore struct {
	mu            sync.RWMutex
	dim           int
	forceRecreate bool
	points        map[string]Point
	log           *slog.Logger
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore(forceRecreate bool, log *slog.Logger) *MemoryStore {
	if log == nil {
		log = slog.Default()
	}
	return &MemoryStore{
		forceRecreate: forceRecreate,
		points:        make(map[string]Point),
		log:           log,
	}
}

// Init pins the store's dimension. A second Init at a different
// dimension fails in strict mode or wipes the store under
// force-recreate, mirroring the Qdrant backends.
func (s *MemoryStore) Init(_ context.Context, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dim == 0 || s.dim == dim {
		s.dim = dim
		return nil
	}
	if !s.forceRecreate {
		return &ragerr.VectorStoreUnavailableError{
			Op:          "init",
			ExpectedDim: dim,
			ActualDim:   s.dim,
			Err:         fmt.Errorf("store has dimension %d, expected %d", s.dim, dim),
		}
	}
	s.log.Warn("recreating in-memory store on dimension mismatch",
		"existing_dim", s.dim, "expected_dim", dim)
	s.points = make(map[string]Point)
	s.dim = dim
	return nil
}

// Upsert replaces points by id. Vectors are copied so later caller
// mutation cannot corrupt the store.
func (s *MemoryStore) Upsert(_ context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := validatePoints(points); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		payload := make(Payload, len(p.Payload))
		for k, v := range p.Payload {
			payload[k] = v
		}
		s.points[p.ID] = Point{ID: p.ID, Vector: vec, Payload: payload}
	}
	return nil
}

// Search scores every point by cosine similarity and returns the topK
// best, rescaled into [0, 1]. An empty store yields an empty slice.
func (s *MemoryStore) Search(_ context.Context, vector []float32, topK int) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := make([]Chunk, 0, len(s.points))
	for _, p := range s.points {
		sim := cosineSimilarity(vector, p.Vector)
		chunks = append(chunks, chunkFromPayload(p.ID, NormalizeScore(sim), p.Payload))
	}
	sortChunksByScore(chunks)
	if topK > 0 && len(chunks) > topK {
		chunks = chunks[:topK]
	}
	return chunks, nil
}

// GetByID looks up a point by exact id, score 1.0 when found.
func (s *MemoryStore) GetByID(_ context.Context, id string) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.points[id]
	if !ok {
		return nil, nil
	}
	c := chunkFromPayload(p.ID, 1.0, p.Payload)
	return &c, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// Len reports the number of stored points.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// cosineSimilarity returns the cosine of the angle between a and b, or
// 0 when either vector has zero norm or the lengths differ.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
