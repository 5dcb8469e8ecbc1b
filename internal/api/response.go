package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/msalmanai62/rag-bot/internal/chat"
	"github.com/msalmanai62/rag-bot/internal/ingest"
	"github.com/msalmanai62/rag-bot/internal/store"
)

// WriteJSON writes a JSON response with the given status code.
// Buffer-first so headers are only sent after successful encoding.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Debug("failed to write response body", "error", err)
	}
}

// WriteError writes a JSON error response with a machine-readable code
// and a human-readable message.
func WriteError(w http.ResponseWriter, status int, code, message string, logger *slog.Logger) {
	if status >= 500 {
		logger.Error("request failed", "status", status, "code", code, "message", message)
	}
	WriteJSON(w, status, map[string]string{"code": code, "message": message})
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "chat not found", logger)
	case errors.Is(err, store.ErrPermissionDenied):
		WriteError(w, http.StatusForbidden, "forbidden", "chat access denied", logger)
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		WriteError(w, http.StatusUnsupportedMediaType, "unsupported_format", err.Error(), logger)
	case errors.Is(err, ingest.ErrDocumentTooLarge):
		WriteError(w, http.StatusRequestEntityTooLarge, "document_too_large", err.Error(), logger)
	case errors.Is(err, ingest.ErrEmptyDocument):
		WriteError(w, http.StatusBadRequest, "empty_document", err.Error(), logger)
	case errors.Is(err, ingest.ErrIngestionFailed):
		WriteError(w, http.StatusBadGateway, "ingestion_failed", "document ingestion failed", logger)
	case errors.Is(err, chat.ErrEmptyQuery):
		WriteError(w, http.StatusBadRequest, "empty_message", "message text required", logger)
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", logger)
	}
}
