package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"canasta/internal/core"
	"canasta/internal/ingest"
	"canasta/internal/storage"
)

// envelope is the uniform response shape: exactly one of Data or Error is
// set.
type envelope struct {
	Data  any       `json:"data,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message  string   `json:"message"`
	Problems []string `json:"problems,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Data: data}); err != nil {
		slog.Error("Failed to encode response", "error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, message string, problems ...string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Error: &apiError{Message: message, Problems: problems}}); err != nil {
		slog.Error("Failed to encode error response", "error", err.Error())
	}
}

// respondError maps domain errors onto HTTP statuses. Validation failures
// carry their full problem list so the client can show every reason at once.
func respondError(w http.ResponseWriter, err error) {
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusUnprocessableEntity, "validation failed", ve.Problems...)
		return
	}

	var fe *ingest.FormatError
	if errors.As(err, &fe) {
		writeError(w, http.StatusBadRequest, fe.Error())
		return
	}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, core.ErrMissingDate), errors.Is(err, core.ErrInvalidDate):
		writeError(w, http.StatusUnprocessableEntity, "validation failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
