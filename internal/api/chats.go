package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/msalmanai62/rag-bot/internal/rag"
)

// chatHandler serves session CRUD and transcript endpoints.
type chatHandler struct {
	svc    *rag.Service
	logger *slog.Logger
}

type chatResponse struct {
	ChatID    string    `json:"chat_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type messageResponse struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// owner extracts the caller identity, writing a 401 when it is absent.
func owner(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (string, bool) {
	id := r.Header.Get(ownerHeader)
	if id == "" {
		WriteError(w, http.StatusUnauthorized, "identity_required", "X-User-ID header required", logger)
		return "", false
	}
	return id, true
}

// chatID parses the {id} path segment, writing a 400 when malformed.
func chatID(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_id", "invalid chat ID", logger)
		return uuid.Nil, false
	}
	return id, true
}

func (h *chatHandler) create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r, h.logger)
	if !ok {
		return
	}

	var req struct {
		Name       string `json:"name"`
		DefaultURL string `json:"default_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body", h.logger)
		return
	}
	if req.Name == "" {
		req.Name = "New Chat"
	}

	id, err := h.svc.CreateSession(r.Context(), ownerID, req.Name, req.DefaultURL)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]string{"chat_id": id.String(), "name": req.Name})
}

func (h *chatHandler) list(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r, h.logger)
	if !ok {
		return
	}

	chats, err := h.svc.ListSessions(r.Context(), ownerID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	resp := make([]chatResponse, 0, len(chats))
	for _, c := range chats {
		resp = append(resp, chatResponse{
			ChatID:    c.ID.String(),
			Name:      c.Name,
			CreatedAt: c.CreatedAt,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"chats": resp})
}

func (h *chatHandler) history(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := chatID(w, r, h.logger)
	if !ok {
		return
	}

	msgs, err := h.svc.GetHistory(r.Context(), ownerID, id)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	resp := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, messageResponse{
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"messages": resp})
}

func (h *chatHandler) delete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := chatID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.svc.DeleteSession(r.Context(), ownerID, id); err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *chatHandler) clear(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := chatID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.svc.ClearChat(r.Context(), ownerID, id); err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
