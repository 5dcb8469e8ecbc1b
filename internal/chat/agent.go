package chat

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/msalmanai62/rag-bot/internal/index"
	"github.com/msalmanai62/rag-bot/internal/log"
	"github.com/msalmanai62/rag-bot/internal/store"
)

// Agent binds one chat session to its index handle and the generation
// model. It retrieves grounding passages from the session index and
// produces streamed replies with the session transcript as model
// context. Agents are created per (owner, chat) by the registry and
// are safe for sequential turns; the pipeline serializes access.
type Agent struct {
	genkit    *genkit.Genkit
	modelName string
	handle    *index.Handle
	store     *store.Store
	owner     string
	chatID    uuid.UUID
	topK      int
	limiter   *rate.Limiter
	logger    log.Logger
}

// AgentConfig carries the dependencies for NewAgent. Genkit, Handle,
// Store and Logger are required; Limiter is optional.
type AgentConfig struct {
	Genkit    *genkit.Genkit
	ModelName string
	Handle    *index.Handle
	Store     *store.Store
	Owner     string
	ChatID    uuid.UUID
	TopK      int
	Limiter   *rate.Limiter
	Logger    log.Logger
}

// NewAgent creates an agent for one chat session.
func NewAgent(cfg AgentConfig) *Agent {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 3
	}
	return &Agent{
		genkit:    cfg.Genkit,
		modelName: cfg.ModelName,
		handle:    cfg.Handle,
		store:     cfg.Store,
		owner:     cfg.Owner,
		chatID:    cfg.ChatID,
		topK:      topK,
		limiter:   cfg.Limiter,
		logger:    cfg.Logger.With("component", "agent", "chat_id", cfg.ChatID.String()),
	}
}

// Retrieve queries the session index for the passages most similar to
// the query. A session with no ingested documents yields no passages,
// which is not an error.
func (a *Agent) Retrieve(ctx context.Context, query string) ([]index.Result, error) {
	results, err := a.handle.Search(ctx, query, a.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrievalFailed, err)
	}
	return results, nil
}

// Generate streams the model reply for the assembled prompt. Prior
// turns of this session are loaded from the transcript and passed as
// model context, so the checkpoint survives process restarts. Each
// fragment is forwarded to cb in production order; the concatenated
// reply is returned once the stream ends.
func (a *Agent) Generate(ctx context.Context, prompt string, cb func(context.Context, string) error) (string, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: rate limit wait: %w", ErrGenerationFailed, err)
		}
	}

	history, err := a.loadHistory(ctx)
	if err != nil {
		return "", err
	}
	messages := append(history, ai.NewUserMessage(ai.NewTextPart(prompt)))

	response, err := genkit.Generate(ctx, a.genkit,
		ai.WithModelName(a.modelName),
		ai.WithMessages(messages...),
		ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			if cb == nil {
				return nil
			}
			return cb(ctx, chunk.Text())
		}),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	return response.Text(), nil
}

// loadHistory converts the persisted transcript into model messages.
// The current turn's user message is already persisted when Generate
// runs, so the final history entry is dropped in favor of the
// retrieval-augmented prompt.
func (a *Agent) loadHistory(ctx context.Context) ([]*ai.Message, error) {
	msgs, err := a.store.GetHistory(ctx, a.owner, a.chatID)
	if err != nil {
		return nil, fmt.Errorf("%w: load history: %w", ErrGenerationFailed, err)
	}
	if n := len(msgs); n > 0 && msgs[n-1].Role == store.RoleUser {
		msgs = msgs[:n-1]
	}

	history := make([]*ai.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case store.RoleUser:
			history = append(history, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		case store.RoleAssistant:
			history = append(history, ai.NewModelMessage(ai.NewTextPart(m.Content)))
		}
	}
	return history, nil
}
