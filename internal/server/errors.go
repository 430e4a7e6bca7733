package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tiagosan44/simple-rag/internal/logging"
	"github.com/tiagosan44/simple-rag/internal/ragerr"
)

// errorBody is the canonical error envelope returned by every endpoint
// on a non-2xx response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    ragerr.Code    `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	TraceID string         `json:"trace_id"`
}

// writeError maps err to its HTTP status via the error taxonomy and
// writes the canonical envelope. The trace id links the response to the
// server's log line for the same failure.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := ragerr.CodeOf(err)
	status := ragerr.HTTPStatus(code)
	traceID := uuid.NewString()

	log := logging.FromContext(r.Context())
	log.Error("request failed",
		slog.String("code", string(code)),
		slog.String("trace_id", traceID),
		slog.Any("error", err),
	)

	body := errorBody{Error: errorDetail{
		Code:    code,
		Message: err.Error(),
		Details: ragerr.DetailsOf(err),
		TraceID: traceID,
	}}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		log.Error("error encode failed", slog.Any("error", encErr))
	}
}

// writeJSON writes a 200 JSON response.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode failed", slog.Any("error", err))
	}
}
