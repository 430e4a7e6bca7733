package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tiagosan44/simple-rag/internal/ragerr"
)

const (
	restDialTimeout    = 3 * time.Second
	restRequestTimeout = 10 * time.Second

	// errorBodyLimit truncates backend error bodies before they are
	// attached to error details, keeping responses and logs bounded.
	errorBodyLimit = 200
)

// RESTConfig configures the Qdrant REST backend.
type RESTConfig struct {
	// BaseURL is the Qdrant HTTP endpoint, e.g. http://localhost:6333.
	BaseURL string
	// Collection is the collection name.
	Collection string
	// APIKey is sent as the api-key header when non-empty.
	APIKey string
	// ForceRecreate drops and recreates the collection on a dimension
	// mismatch instead of failing Init.
	ForceRecreate bool
	// BatchSize overrides DefaultBatchSize when positive.
	BatchSize int
	// Logger defaults to slog.Default when nil.
	Logger *slog.Logger
}

// RESTStore talks to Qdrant over its HTTP API using a plain net/http
// client, no SDK.
type RESTStore struct {
	baseURL       string
	collection    string
	apiKey        string
	forceRecreate bool
	batchSize     int
	client        *http.Client
	log           *slog.Logger
}

var _ Store = (*RESTStore)(nil)

// NewRESTStore builds a REST-backed store. It performs no I/O; call
// Init before serving requests.
func NewRESTStore(cfg RESTConfig) *RESTStore {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &RESTStore{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		collection:    cfg.Collection,
		apiKey:        cfg.APIKey,
		forceRecreate: cfg.ForceRecreate,
		batchSize:     batch,
		client: &http.Client{
			Timeout: restRequestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: restDialTimeout}).DialContext,
			},
		},
		log: log,
	}
}

// ----------------------------------------------------------------------------
// Wire types
// ----------------------------------------------------------------------------

type restCollectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

type restCreateCollection struct {
	Vectors struct {
		Size     int    `json:"size"`
		Distance string `json:"distance"`
	} `json:"vectors"`
	HNSWConfig struct {
		M           int `json:"m"`
		EfConstruct int `json:"ef_construct"`
	} `json:"hnsw_config"`
}

type restPoint struct {
	ID      string    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload,omitempty"`
}

type restSearchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

// restPointID accepts both of Qdrant's point id encodings, UUID strings
// and unsigned integers, mirroring pointIDString on the gRPC backend.
type restPointID string

func (id *restPointID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = restPointID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("point id must be a string or number: %w", err)
	}
	*id = restPointID(n.String())
	return nil
}

type restScoredPoint struct {
	ID      restPointID    `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload"`
}

type restSearchResponse struct {
	Result []restScoredPoint `json:"result"`
}

type restScrollRequest struct {
	Filter struct {
		Must []restHasID `json:"must"`
	} `json:"filter"`
	Limit       int  `json:"limit"`
	WithPayload bool `json:"with_payload"`
}

type restHasID struct {
	HasID []string `json:"has_id"`
}

type restScrollResponse struct {
	Result struct {
		Points []restScoredPoint `json:"points"`
	} `json:"result"`
}

// ----------------------------------------------------------------------------
// Store implementation
// ----------------------------------------------------------------------------

// Init checks the collection's dimension and creates it when missing.
// On a mismatch it fails in strict mode or recreates under
// ForceRecreate.
func (s *RESTStore) Init(ctx context.Context, dim int) error {
	status, body, err := s.do(ctx, http.MethodGet, s.collectionPath(), nil)
	if err != nil {
		return storeErr("init", 0, nil, err)
	}
	switch {
	case status == http.StatusNotFound:
		return s.createCollection(ctx, dim)
	case status >= 300:
		return storeErr("init", status, body, nil)
	}

	var info restCollectionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return storeErr("init", status, body, fmt.Errorf("decode collection info: %w", err))
	}
	existing := info.Result.Config.Params.Vectors.Size
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
	if status, body, err := s.do(ctx, http.MethodDelete, s.collectionPath(), nil); err != nil || status >= 300 {
		return storeErr("init", status, body, err)
	}
	return s.createCollection(ctx, dim)
}

func (s *RESTStore) createCollection(ctx context.Context, dim int) error {
	var req restCreateCollection
	req.Vectors.Size = dim
	req.Vectors.Distance = "Cosine"
	req.HNSWConfig.M = 16
	req.HNSWConfig.EfConstruct = 100
	status, body, err := s.do(ctx, http.MethodPut, s.collectionPath(), req)
	if err != nil || status >= 300 {
		return storeErr("init", status, body, err)
	}
	s.log.Info("created collection", "collection", s.collection, "dim", dim)
	return nil
}

// Upsert writes points in batches with wait=true so data is durable
// before the call returns.
func (s *RESTStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := validatePoints(points); err != nil {
		return err
	}
	for start := 0; start < len(points); start += s.batchSize {
		end := start + s.batchSize
		if end > len(points) {
			end = len(points)
		}
		batch := make([]restPoint, 0, end-start)
		for _, p := range points[start:end] {
			batch = append(batch, restPoint{ID: p.ID, Vector: p.Vector, Payload: p.Payload})
		}
		req := map[string]any{"points": batch}
		status, body, err := s.do(ctx, http.MethodPut, s.collectionPath()+"/points?wait=true", req)
		if err != nil || status >= 300 {
			return storeErr("upsert", status, body, err)
		}
	}
	return nil
}

// Search runs a similarity query and rescales scores into [0, 1].
func (s *RESTStore) Search(ctx context.Context, vector []float32, topK int) ([]Chunk, error) {
	req := restSearchRequest{Vector: vector, Limit: topK, WithPayload: true}
	status, body, err := s.do(ctx, http.MethodPost, s.collectionPath()+"/points/search", req)
	if err != nil || status >= 300 {
		return nil, storeErr("search", status, body, err)
	}
	var resp restSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, storeErr("search", status, body, fmt.Errorf("decode search response: %w", err))
	}
	chunks := make([]Chunk, 0, len(resp.Result))
	for _, p := range resp.Result {
		chunks = append(chunks, chunkFromPayload(string(p.ID), NormalizeScore(p.Score), payloadFromAny(p.Payload)))
	}
	return chunks, nil
}

// GetByID scrolls for an exact id. Absent points return (nil, nil).
func (s *RESTStore) GetByID(ctx context.Context, id string) (*Chunk, error) {
	var req restScrollRequest
	req.Filter.Must = []restHasID{{HasID: []string{id}}}
	req.Limit = 1
	req.WithPayload = true
	status, body, err := s.do(ctx, http.MethodPost, s.collectionPath()+"/points/scroll", req)
	if err != nil || status >= 300 {
		return nil, storeErr("get_by_id", status, body, err)
	}
	var resp restScrollResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, storeErr("get_by_id", status, body, fmt.Errorf("decode scroll response: %w", err))
	}
	if len(resp.Result.Points) == 0 {
		return nil, nil
	}
	p := resp.Result.Points[0]
	c := chunkFromPayload(string(p.ID), 1.0, payloadFromAny(p.Payload))
	return &c, nil
}

// Ping hits the collection endpoint for the readiness probe.
func (s *RESTStore) Ping(ctx context.Context) error {
	status, body, err := s.do(ctx, http.MethodGet, "/collections/"+s.collection, nil)
	if err != nil || status >= 500 {
		return storeErr("ping", status, body, err)
	}
	return nil
}

// Close is a no-op for the REST backend.
func (s *RESTStore) Close() error { return nil }

func (s *RESTStore) collectionPath() string {
	return "/collections/" + s.collection
}

// do sends one JSON request and returns the status and raw body. The
// returned error covers transport failures only; HTTP error statuses
// are interpreted by the caller.
func (s *RESTStore) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// storeErr wraps a failed backend call into the store's error type with
// a truncated body so callers never echo multi-kilobyte backends.
func storeErr(op string, status int, body []byte, err error) *ragerr.VectorStoreUnavailableError {
	b := string(body)
	if r := []rune(b); len(r) > errorBodyLimit {
		b = string(r[:errorBodyLimit])
	}
	return &ragerr.VectorStoreUnavailableError{Op: op, Status: status, Body: b, Err: err}
}
