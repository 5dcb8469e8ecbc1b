// Package app wires configuration, storage, the model provider and the
// service layers into a runnable application.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/msalmanai62/rag-bot/internal/chat"
	"github.com/msalmanai62/rag-bot/internal/config"
	"github.com/msalmanai62/rag-bot/internal/index"
	"github.com/msalmanai62/rag-bot/internal/ingest"
	"github.com/msalmanai62/rag-bot/internal/log"
	"github.com/msalmanai62/rag-bot/internal/observability"
	"github.com/msalmanai62/rag-bot/internal/rag"
	"github.com/msalmanai62/rag-bot/internal/registry"
	"github.com/msalmanai62/rag-bot/internal/store"
)

// Model calls across all sessions share one limiter so a burst of
// turns cannot exhaust the provider quota.
const (
	modelCallsPerSecond = 5
	modelCallBurst      = 10
)

// App holds the wired application components.
type App struct {
	Config  *config.Config
	Logger  log.Logger
	Store   *store.Store
	Genkit  *genkit.Genkit
	Service *rag.Service

	otelShutdown func(context.Context) error
}

// Setup builds the application from configuration. The Google AI
// plugin reads its API key from the environment.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	// Trace export must be wired before genkit.Init so the provider is
	// ready when the first span starts.
	otelShutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "ragbot",
		Environment: cfg.Environment,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}

	st, err := store.Open(cfg.SQLitePath, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if embedder == nil {
		_ = st.Close()
		return nil, fmt.Errorf("embedder %q not available", cfg.EmbedderModel)
	}
	embed := index.NewEmbeddingFunc(embedder)

	limiter := rate.NewLimiter(modelCallsPerSecond, modelCallBurst)
	factory := func(owner string, chatID uuid.UUID, handle *index.Handle) *chat.Agent {
		return chat.NewAgent(chat.AgentConfig{
			Genkit:    g,
			ModelName: cfg.ModelName,
			Handle:    handle,
			Store:     st,
			Owner:     owner,
			ChatID:    chatID,
			TopK:      cfg.TopK,
			Limiter:   limiter,
			Logger:    logger,
		})
	}
	reg := registry.New(cfg.IndexDir, embed, factory, logger)

	svc := rag.NewService(rag.ServiceConfig{
		Store:      st,
		Registry:   reg,
		Ingest:     ingest.NewPipeline(st, reg, ingest.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap), nil, cfg.MaxDocumentBytes, logger),
		Turns:      chat.NewPipeline(st, reg, cfg.MaxConcurrentTurns, logger),
		IndexDir:   cfg.IndexDir,
		DefaultURL: cfg.DefaultURL,
		Logger:     logger,
	})

	return &App{
		Config:       cfg,
		Logger:       logger,
		Store:        st,
		Genkit:       g,
		Service:      svc,
		otelShutdown: otelShutdown,
	}, nil
}

// Close releases the application's resources and flushes pending
// trace spans.
func (a *App) Close() error {
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(a.Store.Close(), a.otelShutdown(flushCtx))
}
