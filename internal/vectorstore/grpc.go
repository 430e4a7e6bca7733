package vectorstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qdrant/go-client/qdrant"

	"github.com/tiagosan44/simple-rag/internal/ragerr"
)

// GRPCConfig configures the Qdrant gRPC backend.
type GRPCConfig struct {
	// Host is the Qdrant hostname (default localhost).
	Host string
	// Port is the gRPC port (default 6334).
	Port int
	// Collection is the collection name.
	Collection string
	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string
	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
	// ForceRecreate drops and recreates the collection on a dimension
	// mismatch instead of failing Init.
	ForceRecreate bool
	// Logger defaults to slog.Default when nil.
	Logger *slog.Logger
}

// GRPCStore talks to Qdrant over gRPC via the official go-client.
type GRPCStore struct {
	client        *qdrant.Client
	collection    string
	forceRecreate bool
	log           *slog.Logger
}

var _ Store = (*GRPCStore)(nil)

// NewGRPCStore dials the Qdrant gRPC endpoint. Call Init before serving
// requests.
func NewGRPCStore(cfg GRPCConfig) (*GRPCStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return &GRPCStore{
		client:        client,
		collection:    cfg.Collection,
		forceRecreate: cfg.ForceRecreate,
		log:           log,
	}, nil
}

// Init ensures the collection exists with the expected dimension,
// recreating it under ForceRecreate.
func (s *GRPCStore) Init(ctx context.Context, dim int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return grpcErr("init", err)
	}
	if !exists {
		return s.createCollection(ctx, dim)
	}

	info, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return grpcErr("init", err)
	}
	existing := collectionDim(info)
	if existing == dim {
		return nil
	}
	if !s.forceRecreate {
		return &ragerr.VectorStoreUnavailableError{
			Op:          "init",
			ExpectedDim: dim,
			ActualDim:   existing,
			Err:         fmt.Errorf("collection %q has dimension %d, expected %d", s.collection, existing, dim),
		}
	}
	s.log.Warn("recreating collection on dimension mismatch",
		"collection", s.collection, "existing_dim", existing, "expected_dim", dim)
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return grpcErr("init", err)
	}
	return s.createCollection(ctx, dim)
}

func (s *GRPCStore) createCollection(ctx context.Context, dim int) error {
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
		HnswConfig: &qdrant.HnswConfigDiff{
			M:           qdrant.PtrOf(uint64(16)),
			EfConstruct: qdrant.PtrOf(uint64(100)),
		},
	})
	if err != nil {
		return grpcErr("init", err)
	}
	s.log.Info("created collection", "collection", s.collection, "dim", dim)
	return nil
}

// Upsert writes points in batches, waiting for durability.
func (s *GRPCStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := validatePoints(points); err != nil {
		return err
	}
	for start := 0; start < len(points); start += DefaultBatchSize {
		end := start + DefaultBatchSize
		if end > len(points) {
			end = len(points)
		}
		batch := make([]*qdrant.PointStruct, 0, end-start)
		for _, p := range points[start:end] {
			batch = append(batch, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(p.ID),
				Vectors: qdrant.NewVectors(p.Vector...),
				Payload: qdrant.NewValueMap(p.Payload.asAnyMap()),
			})
		}
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         batch,
		})
		if err != nil {
			return grpcErr("upsert", err)
		}
	}
	return nil
}

// Search runs a similarity query and rescales scores into [0, 1].
func (s *GRPCStore) Search(ctx context.Context, vector []float32, topK int) ([]Chunk, error) {
	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, grpcErr("search", err)
	}
	chunks := make([]Chunk, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, chunkFromPayload(pointIDString(r.Id), NormalizeScore(r.Score), payloadFromQdrant(r.Payload)))
	}
	return chunks, nil
}

// GetByID scrolls for an exact id. Absent points return (nil, nil).
func (s *GRPCStore) GetByID(ctx context.Context, id string) (*Chunk, error) {
	results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewHasID(qdrant.NewIDUUID(id))},
		},
		Limit:       qdrant.PtrOf(uint32(1)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, grpcErr("get_by_id", err)
	}
	if len(results) == 0 {
		return nil, nil
	}
	r := results[0]
	c := chunkFromPayload(pointIDString(r.Id), 1.0, payloadFromQdrant(r.Payload))
	return &c, nil
}

// Ping checks gRPC reachability for the readiness probe.
func (s *GRPCStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return grpcErr("ping", err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (s *GRPCStore) Close() error { return s.client.Close() }

func grpcErr(op string, err error) *ragerr.VectorStoreUnavailableError {
	return &ragerr.VectorStoreUnavailableError{Op: op, Err: err}
}

func collectionDim(info *qdrant.CollectionInfo) int {
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return 0
	}
	return int(params.GetSize())
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

// payloadFromQdrant converts the client's protobuf payload values into
// the store's scalar payload model, skipping nested values.
func payloadFromQdrant(m map[string]*qdrant.Value) Payload {
	p := make(Payload, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		switch v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			p[k] = StringValue(v.GetStringValue())
		case *qdrant.Value_IntegerValue:
			p[k] = NumberValue(float64(v.GetIntegerValue()))
		case *qdrant.Value_DoubleValue:
			p[k] = NumberValue(v.GetDoubleValue())
		case *qdrant.Value_BoolValue:
			p[k] = BoolValue(v.GetBoolValue())
		case *qdrant.Value_NullValue:
			p[k] = NullValue()
		}
	}
	return p
}
