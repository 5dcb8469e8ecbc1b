// Package api is the JSON HTTP surface over the rag service: session
// CRUD, document ingestion and SSE turn streaming. Handlers translate
// between HTTP and the service; all domain rules live below.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/msalmanai62/rag-bot/internal/rag"
	"github.com/msalmanai62/rag-bot/internal/store"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger   *slog.Logger
	Service  *rag.Service // Required
	Store    *store.Store // Required: readiness probe
	MaxBytes int64        // Per-document upload cap

	RateRPS   float64 // Per-IP refill rate (0 = default 5/s)
	RateBurst int     // Per-IP burst (0 = default 30)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the API server with all routes configured. ctx
// bounds the rate limiter cleanup goroutine.
func NewServer(ctx context.Context, cfg ServerConfig) (*Server, error) {
	if cfg.Service == nil {
		return nil, errors.New("service is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &chatHandler{svc: cfg.Service, logger: logger}
	dh := &documentHandler{svc: cfg.Service, maxBytes: cfg.MaxBytes, logger: logger}
	sh := &streamHandler{svc: cfg.Service, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chats", ch.create)
	mux.HandleFunc("GET /api/chats", ch.list)
	mux.HandleFunc("GET /api/chats/{id}/messages", ch.history)
	mux.HandleFunc("DELETE /api/chats/{id}", ch.delete)
	mux.HandleFunc("POST /api/chats/{id}/clear", ch.clear)
	mux.HandleFunc("POST /api/chats/{id}/documents", dh.ingest)
	mux.HandleFunc("POST /api/chats/{id}/stream", sh.stream)

	rps := cfg.RateRPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 30
	}
	rl := newRateLimiter(rps, burst)
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.cleanup(time.Hour)
			}
		}
	}()

	// Middleware stack, outermost first: Recovery → Logging → RateLimit.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Store))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
