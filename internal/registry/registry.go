// Package registry owns the mutable per-session resources: the
// persisted embedding index handle, the ingestion lock that serializes
// writes to it, and the generation agent. Resources are created
// lazily on first access and keyed by (owner, chat), so two owners
// never share a handle and concurrent first access constructs each
// key's resources exactly once.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"github.com/msalmanai62/rag-bot/internal/chat"
	"github.com/msalmanai62/rag-bot/internal/index"
	"github.com/msalmanai62/rag-bot/internal/log"
)

// AgentFactory builds the generation agent for a session once its
// index handle exists. Injected so the registry stays free of model
// wiring.
type AgentFactory func(owner string, chatID uuid.UUID, handle *index.Handle) *chat.Agent

type sessionKey struct {
	owner  string
	chatID uuid.UUID
}

// entry holds one session's resources. The once guard makes
// construction happen at most once per key while keeping the
// index open outside the registry lock, so distinct keys never
// serialize on each other's construction.
type entry struct {
	once   sync.Once
	handle *index.Handle
	agent  *chat.Agent
	err    error

	// ingestLock serializes document ingestion for this session.
	ingestLock sync.Mutex
}

// Registry maps (owner, chat) to live session resources.
type Registry struct {
	mu      sync.Mutex
	entries map[sessionKey]*entry

	baseDir string
	embed   chromem.EmbeddingFunc
	factory AgentFactory
	logger  log.Logger
}

// New creates a registry rooted at baseDir, the directory under which
// each session's index artifacts persist.
func New(baseDir string, embed chromem.EmbeddingFunc, factory AgentFactory, logger log.Logger) *Registry {
	return &Registry{
		entries: make(map[sessionKey]*entry),
		baseDir: baseDir,
		embed:   embed,
		factory: factory,
		logger:  logger.With("component", "registry"),
	}
}

// GetOrCreate returns the session's index handle and ingestion lock,
// constructing them on first access. A construction failure is not
// cached; a later call retries.
func (r *Registry) GetOrCreate(ctx context.Context, owner string, chatID uuid.UUID) (*index.Handle, *sync.Mutex, error) {
	e, err := r.resolve(ctx, owner, chatID)
	if err != nil {
		return nil, nil, err
	}
	return e.handle, &e.ingestLock, nil
}

// GetOrCreateAgent returns the session's generation agent,
// constructing the session resources on first access. Implements
// chat.AgentSource.
func (r *Registry) GetOrCreateAgent(ctx context.Context, owner string, chatID uuid.UUID) (*chat.Agent, error) {
	e, err := r.resolve(ctx, owner, chatID)
	if err != nil {
		return nil, err
	}
	return e.agent, nil
}

func (r *Registry) resolve(_ context.Context, owner string, chatID uuid.UUID) (*entry, error) {
	key := sessionKey{owner: owner, chatID: chatID}

	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{}
		r.entries[key] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		handle, err := index.Open(r.baseDir, owner, chatID.String(), r.embed)
		if err != nil {
			e.err = fmt.Errorf("open session index: %w", err)
			return
		}
		e.handle = handle
		e.agent = r.factory(owner, chatID, handle)
		r.logger.Debug("session resources created",
			"owner", owner, "chat_id", chatID.String(), "path", handle.Path())
	})

	if e.err != nil {
		// Drop the failed entry so the next caller reconstructs,
		// unless eviction or a retry replaced it already.
		r.mu.Lock()
		if cur, ok := r.entries[key]; ok && cur == e {
			delete(r.entries, key)
		}
		r.mu.Unlock()
		return nil, e.err
	}
	return e, nil
}

// Evict drops the session's resources from the registry. Idempotent;
// evicting an absent key is a no-op. Persisted index artifacts are
// untouched, so a later GetOrCreate reattaches to them unless the
// caller removed them as well.
func (r *Registry) Evict(owner string, chatID uuid.UUID) {
	key := sessionKey{owner: owner, chatID: chatID}
	r.mu.Lock()
	_, ok := r.entries[key]
	delete(r.entries, key)
	r.mu.Unlock()
	if ok {
		r.logger.Debug("session resources evicted", "owner", owner, "chat_id", chatID.String())
	}
}

// Len reports the number of live sessions, for observability.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
