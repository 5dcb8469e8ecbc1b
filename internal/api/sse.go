package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// sseWriter wraps an http.ResponseWriter for Server-Sent Events. Each
// turn streams chunk events followed by exactly one done or error
// event, mirroring the pipeline's event contract on the wire.
type sseWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &sseWriter{w: w, flusher: flusher}, nil
}

// writeEvent writes one SSE event with a JSON payload. Multi-line data
// gets the per-line "data: " prefix the SSE format requires.
func (s *sseWriter) writeEvent(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
		return fmt.Errorf("write event name: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if _, err := fmt.Fprintf(s.w, "data: %s\n", line); err != nil {
			return fmt.Errorf("write data line: %w", err)
		}
	}
	if _, err := s.w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("write terminator: %w", err)
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) writeChunk(text string) error {
	return s.writeEvent("chunk", map[string]string{"text": text})
}

func (s *sseWriter) writeDone(reply string) error {
	return s.writeEvent("done", map[string]string{"status": "completed", "response": reply})
}

func (s *sseWriter) writeError(code, message string) error {
	return s.writeEvent("error", map[string]string{"code": code, "message": message})
}
