package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/msalmanai62/rag-bot/internal/log"
	"github.com/msalmanai62/rag-bot/internal/store"
)

const tracerName = "github.com/msalmanai62/rag-bot/internal/chat"

// eventBufferSize bounds the in-flight fragments between the model
// stream and the caller. A full buffer blocks the model callback,
// which is the backpressure path; fragments are never dropped.
const eventBufferSize = 16

// turnState tracks the lifecycle of one turn for logging.
type turnState int

const (
	stateAccepted turnState = iota
	stateRetrieving
	stateGenerating
	stateCompleted
	stateFailed
)

func (s turnState) String() string {
	switch s {
	case stateAccepted:
		return "accepted"
	case stateRetrieving:
		return "retrieving"
	case stateGenerating:
		return "generating"
	case stateCompleted:
		return "completed"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// AgentSource resolves the agent bound to a chat session. Implemented
// by registry.Registry.
type AgentSource interface {
	GetOrCreateAgent(ctx context.Context, owner string, chatID uuid.UUID) (*Agent, error)
}

// Pipeline runs conversation turns. Concurrent turns across sessions
// are bounded by a worker pool; excess turns queue on the semaphore
// rather than spawning without limit.
type Pipeline struct {
	store  *store.Store
	agents AgentSource
	sem    *semaphore.Weighted
	logger log.Logger
}

// NewPipeline creates a turn pipeline. maxConcurrent bounds the number
// of simultaneously generating turns; values below 1 are raised to 1.
func NewPipeline(st *store.Store, agents AgentSource, maxConcurrent int, logger log.Logger) *Pipeline {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Pipeline{
		store:  st,
		agents: agents,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		logger: logger.With("component", "pipeline"),
	}
}

// StreamTurn runs one conversation turn and streams its events.
//
// The user message is persisted before any model work starts, so the
// transcript records the question even when generation fails. The
// returned channel carries the reply fragments in production order
// followed by exactly one terminal event, then closes. Ownership and
// persistence failures before the stream starts are returned
// synchronously instead.
//
// Once the stream starts the turn runs to completion on a detached
// context: a caller that stops reading slows the stream down but does
// not cancel generation, and the assistant reply is persisted even if
// the caller is gone by the time it finishes.
func (p *Pipeline) StreamTurn(ctx context.Context, owner string, chatID uuid.UUID, query string) (<-chan Event, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if err := p.store.AssertOwner(ctx, owner, chatID); err != nil {
		return nil, err
	}
	if err := p.store.AppendMessage(ctx, owner, chatID, store.RoleUser, query); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire turn slot: %w", err)
	}

	events := make(chan Event, eventBufferSize)
	genCtx := context.WithoutCancel(ctx)
	go p.runTurn(genCtx, owner, chatID, query, events)
	return events, nil
}

func (p *Pipeline) runTurn(ctx context.Context, owner string, chatID uuid.UUID, query string, events chan<- Event) {
	defer p.sem.Release(1)
	defer close(events)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "chat.turn",
		trace.WithAttributes(attribute.String("chat.id", chatID.String())))
	defer span.End()

	logger := p.logger.With("chat_id", chatID.String())
	fail := func(state turnState, err error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, state.String())
		logger.Error("turn failed", "state", state.String(), "error", err)
		events <- errorEvent(err)
	}

	logger.Debug("turn state", "state", stateRetrieving.String())
	agent, err := p.agents.GetOrCreateAgent(ctx, owner, chatID)
	if err != nil {
		fail(stateRetrieving, fmt.Errorf("%w: resolve agent: %w", ErrRetrievalFailed, err))
		return
	}
	passages, err := agent.Retrieve(ctx, query)
	if err != nil {
		fail(stateRetrieving, err)
		return
	}

	logger.Debug("turn state", "state", stateGenerating.String(), "passages", len(passages))
	prompt := BuildPrompt(query, passages)
	reply, err := agent.Generate(ctx, prompt, func(ctx context.Context, fragment string) error {
		if fragment == "" {
			return nil
		}
		events <- chunkEvent(fragment)
		return nil
	})
	if err != nil {
		fail(stateGenerating, err)
		return
	}

	if err := p.store.AppendMessage(ctx, owner, chatID, store.RoleAssistant, reply); err != nil {
		// The caller already received the full reply; losing the
		// history copy is logged, not retracted.
		logger.Error("persist assistant message", "error", err)
	}

	span.SetAttributes(attribute.Int("reply.bytes", len(reply)))
	logger.Debug("turn state", "state", stateCompleted.String(), "reply_bytes", len(reply))
	events <- doneEvent(reply)
}
