package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"github.com/msalmanai62/rag-bot/internal/rag"
)

// documentHandler serves document ingestion. Uploads arrive as
// multipart form data with a "file" field; URL ingestion arrives as a
// JSON body with a "url" field.
type documentHandler struct {
	svc      *rag.Service
	maxBytes int64
	logger   *slog.Logger
}

func (h *documentHandler) ingest(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := chatID(w, r, h.logger)
	if !ok {
		return
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		// Bound the request body before parsing so an oversized
		// upload is rejected instead of spooled to temp files; the
		// cap leaves headroom for field framing, and the pipeline
		// enforces the exact per-document limit.
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
		if err := r.ParseMultipartForm(h.maxBytes); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				WriteError(w, http.StatusRequestEntityTooLarge, "document_too_large", "upload exceeds the size cap", h.logger)
				return
			}
			WriteError(w, http.StatusBadRequest, "invalid_upload", "invalid multipart form", h.logger)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			WriteError(w, http.StatusBadRequest, "missing_file", `multipart field "file" required`, h.logger)
			return
		}
		defer file.Close()

		n, err := h.svc.IngestFile(r.Context(), ownerID, id, header.Filename, file)
		if err != nil {
			writeServiceError(w, err, h.logger)
			return
		}
		WriteJSON(w, http.StatusCreated, map[string]any{"source": header.Filename, "chunks_added": n})
		return
	}

	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		WriteError(w, http.StatusBadRequest, "invalid_body", `JSON body with "url" required`, h.logger)
		return
	}

	n, err := h.svc.IngestURL(r.Context(), ownerID, id, req.URL)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{"source": req.URL, "chunks_added": n})
}
