package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tiagosan44/simple-rag/internal/embedding"
	"github.com/tiagosan44/simple-rag/internal/history"
	"github.com/tiagosan44/simple-rag/internal/pipeline"
	"github.com/tiagosan44/simple-rag/internal/ragerr"
	"github.com/tiagosan44/simple-rag/internal/vectorstore"
)

// testDim is the embedding dimension used by all server tests.
const testDim = 16

// ---------------------------------------------------------------------------
// Test doubles and fixtures
// ---------------------------------------------------------------------------

// fakeAsker is a test double for the ask pipeline.
type fakeAsker struct {
	// result is returned by Ask when err is nil.
	result *pipeline.AskResult
	// err is returned by Ask when non-nil.
	err error
	// calls counts Ask invocations.
	calls int
	// lastTopK and lastTemp record the arguments of the last call.
	lastTopK int
	lastTemp float32
}

func (f *fakeAsker) Ask(_ context.Context, _ string, topK int, temperature float32) (*pipeline.AskResult, error) {
	f.calls++
	f.lastTopK = topK
	f.lastTemp = temperature
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeHistory is an in-memory test double for the history store.
type fakeHistory struct {
	// entries holds appended entries, newest last.
	entries []history.Entry
	// appendErr forces Append to fail when non-nil.
	appendErr error
}

func (f *fakeHistory) Append(_ context.Context, e history.Entry) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeHistory) Recent(_ context.Context, n int) ([]history.Entry, error) {
	if n > len(f.entries) {
		n = len(f.entries)
	}
	out := make([]history.Entry, 0, n)
	for i := len(f.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, f.entries[i])
	}
	return out, nil
}

func (f *fakeHistory) Close() error { return nil }

// discardLogger returns a logger that drops everything, keeping test
// output clean.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testDeps builds a default dependency set: a synthetic embedder behind
// the cache, an empty in-memory vector store, and a fakeAsker.
func testDeps(t *testing.T) (Deps, *fakeAsker, *vectorstore.MemoryStore) {
	t.Helper()

	log := discardLogger()
	store := vectorstore.NewMemoryStore(false, log)
	if err := store.Init(t.Context(), testDim); err != nil {
		t.Fatalf("init store: %v", err)
	}

	asker := &fakeAsker{result: &pipeline.AskResult{
		Answer:            "The refund window is 30 days. [doc-4]",
		RawProviderOutput: "The refund window is 30 days. [doc-4]",
		Prompt:            "Question: what is the refund window?",
		LatencyMS:         12,
		Model:             "gpt-4o",
	}}

	deps := Deps{
		Embedder: embedding.NewCache(embedding.NewFallback(nil, testDim, log), 64, time.Minute),
		Store:    store,
		Asker:    asker,
	}
	return deps, asker, store
}

// newHandlersTestServer assembles a full Server with the middleware chain
// so tests exercise routing, auth, and error rendering together.
func newHandlersTestServer(t *testing.T, deps Deps, cfg *Config) *Server {
	t.Helper()

	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Logger == nil {
		cfg.Logger = discardLogger()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	// Generous per-IP budget so parallel tests never trip the limiter.
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 1000
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = 1000
	}

	s, err := New(deps, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)
	return s
}

// doJSON posts body to path against the server's full handler chain and
// returns the recorded response.
func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// decodeErrorBody decodes the canonical error envelope from w.
func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()

	var body errorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error envelope: %v — body: %s", err, w.Body.String())
	}
	return body
}

// ---------------------------------------------------------------------------
// POST /api/embed
// ---------------------------------------------------------------------------

// TestHandleEmbed_OK verifies the default response carries the content
// fingerprint, dimension, and model, and withholds the raw vector.
func TestHandleEmbed_OK(t *testing.T) {
	t.Parallel()

	deps, _, _ := testDeps(t)
	s := newHandlersTestServer(t, deps, nil)

	w := doJSON(t, s, http.MethodPost, "/api/embed", embedRequest{Text: "refund window"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp embedResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.EmbeddingID != embedding.Fingerprint("refund window") {
		t.Errorf("embedding_id: expected fingerprint, got %q", resp.EmbeddingID)
	}
	if resp.VectorDim != testDim {
		t.Errorf("vector_dim: expected %d, got %d", testDim, resp.VectorDim)
	}
	if resp.Model != embedding.FallbackModel {
		t.Errorf("model: expected %q, got %q", embedding.FallbackModel, resp.Model)
	}
	if len(resp.Vector) != 0 {
		t.Errorf("vector: expected omitted without debug, got %d elements", len(resp.Vector))
	}
	if resp.Cached {
		t.Errorf("cached: expected false on first call")
	}
}

// TestHandleEmbed_DebugIncludesVector verifies debug:true returns the
// full vector.
func TestHandleEmbed_DebugIncludesVector(t *testing.T) {
	t.Parallel()

	deps, _, _ := testDeps(t)
	s := newHandlersTestServer(t, deps, nil)

	w := doJSON(t, s, http.MethodPost, "/api/embed", embedRequest{Text: "refund window", Debug: true})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp embedResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Vector) != testDim {
		t.Errorf("vector: expected %d elements with debug, got %d", testDim, len(resp.Vector))
	}
}

// TestHandleEmbed_SecondCallCached verifies the cache flag flips to true
// when the same text is embedded twice.
func TestHandleEmbed_SecondCallCached(t *testing.T) {
	t.Parallel()

	deps, _, _ := testDeps(t)
	s := newHandlersTestServer(t, deps, nil)

	doJSON(t, s, http.MethodPost, "/api/embed", embedRequest{Text: "same text"})
	w := doJSON(t, s, http.MethodPost, "/api/embed", embedRequest{Text: "same text"})

	var resp embedResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Cached {
		t.Errorf("cached: expected true on second call")
	}
}

// TestHandleEmbed_EmptyText verifies an empty text is rejected with the
// canonical 400 envelope.
func TestHandleEmbed_EmptyText(t *testing.T) {
	t.Parallel()

	deps, _, _ := testDeps(t)
	s := newHandlersTestServer(t, deps, nil)

	w := doJSON(t, s, http.MethodPost, "/api/embed", embedRequest{Text: ""})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d — body: %s", w.Code, w.Body.String())
	}

	body := decodeErrorBody(t, w)
	if body.Error.Code != ragerr.CodeValidation {
		t.Errorf("code: expected %q, got %q", ragerr.CodeValidation, body.Error.Code)
	}
	if body.Error.TraceID == "" {
		t.Errorf("trace_id: expected non-empty")
	}
	if body.Error.Details["field"] != "text" {
		t.Errorf("details.field: expected %q, got %v", "text", body.Error.Details["field"])
	}
}

// TestHandleEmbed_InvalidJSON verifies a malformed body is rejected with 400.
func TestHandleEmbed_InvalidJSON(t *testing.T) {
	t.Parallel()

	deps, _, _ := testDeps(t)
	s := newHandlersTestServer(t, deps, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/embed", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d — body: %s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// POST /api/search
// ---------------------------------------------------------------------------

// seedChunk upserts one point whose vector is the synthetic embedding of
// its text, so searching for the same text ranks it first.
func seedChunk(t *testing.T, store *vectorstore.MemoryStore, id, text string) {
	t.Helper()

	idx := 0
	err := store.Upsert(t.Context(), []vectorstore.Point{{
		ID:     id,
		Vector: embedding.SyntheticVector(text, testDim),
		Payload: vectorstore.Payload{
			vectorstore.PayloadKeyText:       vectorstore.StringValue(text),
			vectorstore.PayloadKeyChunkIndex: vectorstore.IntValue(idx),
			vectorstore.PayloadKeySource:     vectorstore.StringValue("https://docs.example.com/refunds"),
		},
	}})
	if err != nil {
		t.Fatalf("seed upsert: %v", err)
	}
}

// TestHandleSearch_OK verifies end-to-end retrieval: the query text is
// embedded and the matching chunk comes back first with its payload.
func TestHandleSearch_OK(t *testing.T) {
	t.Parallel()

	deps, _, store := testDeps(t)
	seedChunk(t, store, "doc-4", "Refunds are processed within 30 days of purchase.")
	seedChunk(t, store, "doc-9", "Shipping takes 3 to 5 business days.")
	s := newHandlersTestServer(t, deps, nil)

	w := doJSON(t, s, http.MethodPost, "/api/search", searchRequest{
		Query: "Refunds are processed within 30 days of purchase.",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp searchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	first := resp.Results[0]
	if first.ID != "doc-4" {
		t.Errorf("first result: expected doc-4, got %q", first.ID)
	}
	if first.Score < 0.99 {
		t.Errorf("first score: expected ~1.0 for identical text, got %v", first.Score)
	}
	if first.Source != "https://docs.example.com/refunds" {
		t.Errorf("source: got %q", first.Source)
	}
	if first.ChunkIndex == nil || *first.ChunkIndex != 0 {
		t.Errorf("chunk_index: expected 0, got %v", first.ChunkIndex)
	}
}

// TestHandleSearch_EmptyQuery verifies an empty query is rejected with 400.
func TestHandleSearch_EmptyQuery(t *testing.T) {
	t.Parallel()

	deps, _, _ := testDeps(t)
	s := newHandlersTestServer(t, deps, nil)

	w := doJSON(t, s, http.MethodPost, "/api/search", searchRequest{Query: ""})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d — body: %s", w.Code, w.Body.String())
	}
	body := decodeErrorBody(t, w)
	if body.Error.Details["field"] != "query" {
		t.Errorf("details.field: expected %q, got %v", "query", body.Error.Details["field"])
	}
}

// TestHandleSearch_NegativeTopK verifies a negative top_k is rejected
// before any embedding work happens.
func TestHandleSearch_NegativeTopK(t *testing.T) {
	t.Parallel()

	deps, _, _ := testDeps(t)
	s := newHandlersTestServer(t, deps, nil)

	w := doJSON(t, s, http.MethodPost, "/api/search", searchRequest{Query: "q", TopK: -1})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d — body: %s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// POST /api/ask
// ---------------------------------------------------------------------------

// TestHandleAsk_OK verifies the happy path response shape and that the
// answered question lands in history.
func TestHandleAsk_OK(t *testing.T) {
	t.Parallel()

	deps, asker, _ := testDeps(t)
	hist := &fakeHistory{}
	deps.History = hist
	s := newHandlersTestServer(t, deps, nil)

	w := doJSON(t, s, http.MethodPost, "/api/ask", askRequest{Question: "what is the refund window?"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp askResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != asker.result.Answer {
		t.Errorf("answer: got %q", resp.Answer)
	}
	if resp.Model != "gpt-4o" {
		t.Errorf("model: got %q", resp.Model)
	}
	if resp.Prompt == "" {
		t.Errorf("prompt: expected non-empty")
	}
	if asker.calls != 1 {
		t.Errorf("asker calls: expected 1, got %d", asker.calls)
	}

	if len(hist.entries) != 1 {
		t.Fatalf("history: expected 1 entry, got %d", len(hist.entries))
	}
	if hist.entries[0].Question != "what is the refund window?" {
		t.Errorf("history question: got %q", hist.entries[0].Question)
	}
	if hist.entries[0].Model != "gpt-4o" {
		t.Errorf("history model: got %q", hist.entries[0].Model)
	}
}

// TestHandleAsk_DefaultsForwarded verifies unset top_k and temperature are
// passed through as zero values for the pipeline to default.
func TestHandleAsk_DefaultsForwarded(t *testing.T) {
	t.Parallel()

	deps, asker, _ := testDeps(t)
	s := newHandlersTestServer(t, deps, nil)

	w := doJSON(t, s, http.MethodPost, "/api/ask", askRequest{Question: "q"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if asker.lastTopK != 0 {
		t.Errorf("top_k: expected 0 forwarded, got %d", asker.lastTopK)
	}
	if asker.lastTemp != 0 {
		t.Errorf("temperature: expected 0 forwarded, got %v", asker.lastTemp)
	}
}

// TestHandleAsk_ProviderUnavailable verifies an LLM failure surfaces as
// 503 with the matching code in the envelope.
func TestHandleAsk_ProviderUnavailable(t *testing.T) {
	t.Parallel()

	deps, asker, _ := testDeps(t)
	asker.err = &ragerr.LLMProviderUnavailableError{Reason: "chat completion failed after retries", Err: errors.New("connection refused")}
	s := newHandlersTestServer(t, deps, nil)

	w := doJSON(t, s, http.MethodPost, "/api/ask", askRequest{Question: "q"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d — body: %s", w.Code, w.Body.String())
	}
	body := decodeErrorBody(t, w)
	if body.Error.Code != ragerr.CodeLLMProvider {
		t.Errorf("code: expected %q, got %q", ragerr.CodeLLMProvider, body.Error.Code)
	}
	if body.Error.TraceID == "" {
		t.Errorf("trace_id: expected non-empty")
	}
}

// TestHandleAsk_TemperatureOutOfRange verifies temperature validation.
func TestHandleAsk_TemperatureOutOfRange(t *testing.T) {
	t.Parallel()

	deps, _, _ := testDeps(t)
	s := newHandlersTestServer(t, deps, nil)

	for _, temp := range []float32{-0.1, 1.5} {
		w := doJSON(t, s, http.MethodPost, "/api/ask", askRequest{Question: "q", Temperature: temp})
		if w.Code != http.StatusBadRequest {
			t.Errorf("temperature %v: expected 400, got %d", temp, w.Code)
		}
	}
}

// TestHandleAsk_HistoryFailureNonFatal verifies a history write failure
// never fails the request.
func TestHandleAsk_HistoryFailureNonFatal(t *testing.T) {
	t.Parallel()

	deps, _, _ := testDeps(t)
	deps.History = &fakeHistory{appendErr: errors.New("disk full")}
	s := newHandlersTestServer(t, deps, nil)

	w := doJSON(t, s, http.MethodPost, "/api/ask", askRequest{Question: "q"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 despite history failure, got %d — body: %s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// GET /api/history
// ---------------------------------------------------------------------------

// TestHandleHistory_ReturnsEntries verifies recorded questions come back
// newest first.
func TestHandleHistory_ReturnsEntries(t *testing.T) {
	t.Parallel()

	deps, _, _ := testDeps(t)
	deps.History = &fakeHistory{entries: []history.Entry{
		{Question: "first", Answer: "a1"},
		{Question: "second", Answer: "a2"},
	}}
	s := newHandlersTestServer(t, deps, nil)

	w := doJSON(t, s, http.MethodGet, "/api/history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp historyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(resp.Entries))
	}
	if resp.Entries[0].Question != "second" {
		t.Errorf("expected newest first, got %q", resp.Entries[0].Question)
	}
}

// TestHandleHistory_LimitParam verifies ?limit=N caps the response and
// out-of-range values are rejected.
func TestHandleHistory_LimitParam(t *testing.T) {
	t.Parallel()

	deps, _, _ := testDeps(t)
	deps.History = &fakeHistory{entries: []history.Entry{
		{Question: "q1"}, {Question: "q2"}, {Question: "q3"},
	}}
	s := newHandlersTestServer(t, deps, nil)

	w := doJSON(t, s, http.MethodGet, "/api/history?limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	var resp historyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Entries) != 2 {
		t.Errorf("expected 2 entries with limit=2, got %d", len(resp.Entries))
	}

	for _, bad := range []string{"0", "-3", "9999", "abc"} {
		w := doJSON(t, s, http.MethodGet, "/api/history?limit="+bad, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected 400, got %d", bad, w.Code)
		}
	}
}

// TestHandleHistory_Disabled verifies the endpoint rejects cleanly when
// no history store is wired.
func TestHandleHistory_Disabled(t *testing.T) {
	t.Parallel()

	deps, _, _ := testDeps(t)
	s := newHandlersTestServer(t, deps, nil)

	w := doJSON(t, s, http.MethodGet, "/api/history", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d — body: %s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// TestNew_RequiresCoreDeps verifies New rejects a nil embedder, store,
// or asker.
func TestNew_RequiresCoreDeps(t *testing.T) {
	t.Parallel()

	deps, _, _ := testDeps(t)

	missingEmbedder := deps
	missingEmbedder.Embedder = nil
	if _, err := New(missingEmbedder, nil); err == nil {
		t.Errorf("expected error for nil embedder")
	}

	missingStore := deps
	missingStore.Store = nil
	if _, err := New(missingStore, nil); err == nil {
		t.Errorf("expected error for nil store")
	}

	missingAsker := deps
	missingAsker.Asker = nil
	if _, err := New(missingAsker, nil); err == nil {
		t.Errorf("expected error for nil asker")
	}
}
