package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/tiagosan44/simple-rag/internal/history"
	"github.com/tiagosan44/simple-rag/internal/logging"
	"github.com/tiagosan44/simple-rag/internal/ragerr"
)

// defaultSearchTopK is the retrieval depth for /api/search when the
// request does not choose one.
const defaultSearchTopK = 5

// defaultHistoryLimit applies to GET /api/history when no limit is given;
// maxHistoryLimit bounds what a client may request.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// handleEmbed handles POST /api/embed. The raw vector is withheld
// unless debug is set, keeping routine responses small.
func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	var req embedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, &ragerr.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}
	if req.Text == "" {
		writeError(w, r, &ragerr.ValidationError{Field: "text", Reason: "must not be empty"})
		return
	}

	result, cached, err := s.deps.Embedder.EmbedCached(r.Context(), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := embedResponse{
		EmbeddingID: result.ID,
		VectorDim:   len(result.Vector),
		Model:       result.Model,
		Cached:      cached,
	}
	if req.Debug {
		resp.Vector = result.Vector
	}
	writeJSON(w, r, resp)
}

// handleSearch handles POST /api/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, &ragerr.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}
	if req.Query == "" {
		writeError(w, r, &ragerr.ValidationError{Field: "query", Reason: "must not be empty"})
		return
	}
	if req.TopK < 0 {
		writeError(w, r, &ragerr.ValidationError{Field: "top_k", Reason: "must not be negative"})
		return
	}
	topK := req.TopK
	if topK == 0 {
		topK = defaultSearchTopK
	}

	emb, err := s.deps.Embedder.Embed(r.Context(), req.Query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	chunks, err := s.deps.Store.Search(r.Context(), emb.Vector, topK)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, searchResponse{Results: chunkDTOs(chunks)})
}

// handleAsk handles POST /api/ask, the end-to-end question flow.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, &ragerr.ValidationError{Field: "body", Reason: "invalid JSON"})
		return
	}
	if req.Question == "" {
		writeError(w, r, &ragerr.ValidationError{Field: "question", Reason: "must not be empty"})
		return
	}
	if req.TopK < 0 {
		writeError(w, r, &ragerr.ValidationError{Field: "top_k", Reason: "must not be negative"})
		return
	}
	if req.Temperature < 0 || req.Temperature > 1 {
		writeError(w, r, &ragerr.ValidationError{Field: "temperature", Reason: "must be in [0, 1]"})
		return
	}

	start := time.Now()
	result, err := s.deps.Asker.Ask(r.Context(), req.Question, req.TopK, req.Temperature)
	if err != nil {
		s.metrics.observeAsk("error", time.Since(start))
		writeError(w, r, err)
		return
	}
	s.metrics.observeAsk("ok", time.Since(start))

	s.recordHistory(r, req.Question, result.Answer, result.Model, result.LatencyMS)

	writeJSON(w, r, askResponse{
		Answer:            result.Answer,
		SourceChunks:      chunkDTOs(result.SourceChunks),
		RawProviderOutput: result.RawProviderOutput,
		Prompt:            result.Prompt,
		LatencyMS:         result.LatencyMS,
		Model:             result.Model,
		Usage:             result.Usage,
	})
}

// recordHistory persists an answered question when history is enabled.
// A write failure is logged and never fails the request.
func (s *Server) recordHistory(r *http.Request, question, answer, model string, latencyMS int64) {
	if s.deps.History == nil {
		return
	}
	err := s.deps.History.Append(r.Context(), history.Entry{
		Question:  question,
		Answer:    answer,
		Model:     model,
		LatencyMS: latencyMS,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("history append failed", "error", err)
	}
}

// handleHistory handles GET /api/history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, r, &ragerr.ValidationError{Field: "history", Reason: "history is disabled"})
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			writeError(w, r, &ragerr.ValidationError{Field: "limit", Reason: fmt.Sprintf("must be an integer in [1, %d]", maxHistoryLimit)})
			return
		}
		limit = n
	}
	entries, err := s.deps.History.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, r, historyResponse{Entries: entries})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
