package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/msalmanai62/rag-bot/internal/chat"
	"github.com/msalmanai62/rag-bot/internal/rag"
)

// streamHandler serves conversation turns over Server-Sent Events.
type streamHandler struct {
	svc    *rag.Service
	logger *slog.Logger
}

func (h *streamHandler) stream(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := chatID(w, r, h.logger)
	if !ok {
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body", h.logger)
		return
	}

	// Failures before the stream starts map to plain HTTP statuses;
	// once streaming begins, failures travel in-band as error events.
	events, err := h.svc.StreamTurn(r.Context(), ownerID, id, req.Message)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "streaming_unsupported", err.Error(), h.logger)
		return
	}

	// When the client goes away mid-stream the channel must still be
	// drained: the generation worker keeps producing and its reply is
	// persisted regardless of who is listening.
	clientGone := false
	for ev := range events {
		if clientGone {
			continue
		}
		var werr error
		switch ev.Type {
		case chat.EventTypeChunk:
			werr = sse.writeChunk(ev.TextChunk)
		case chat.EventTypeDone:
			werr = sse.writeDone(ev.Reply)
		case chat.EventTypeError:
			werr = sse.writeError(errorCode(ev.Error), ev.Error.Error())
		}
		if werr != nil {
			h.logger.Debug("client disconnected mid-stream",
				"chat_id", id.String(), "error", werr)
			clientGone = true
		}
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, chat.ErrRetrievalFailed):
		return "retrieval_failed"
	case errors.Is(err, chat.ErrGenerationFailed):
		return "generation_failed"
	default:
		return "turn_failed"
	}
}
