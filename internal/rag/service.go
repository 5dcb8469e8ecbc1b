// Package rag is the service facade over sessions, ingestion and
// generation. HTTP handlers call this package only; it owns the
// ordering rules that keep the durable transcript, the session
// registry and the persisted index artifacts consistent.
package rag

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/msalmanai62/rag-bot/internal/chat"
	"github.com/msalmanai62/rag-bot/internal/index"
	"github.com/msalmanai62/rag-bot/internal/ingest"
	"github.com/msalmanai62/rag-bot/internal/log"
	"github.com/msalmanai62/rag-bot/internal/registry"
	"github.com/msalmanai62/rag-bot/internal/store"
)

// defaultURLIngestTimeout bounds the background seed ingestion that
// runs after session creation.
const defaultURLIngestTimeout = 60 * time.Second

// Service coordinates the store, the session registry and the two
// pipelines behind one API surface.
type Service struct {
	store      *store.Store
	registry   *registry.Registry
	ingest     *ingest.Pipeline
	turns      *chat.Pipeline
	indexDir   string
	defaultURL string
	logger     log.Logger
}

// ServiceConfig carries the dependencies for NewService.
type ServiceConfig struct {
	Store    *store.Store
	Registry *registry.Registry
	Ingest   *ingest.Pipeline
	Turns    *chat.Pipeline
	IndexDir string

	// DefaultURL, when non-empty, is ingested into every new session
	// in the background.
	DefaultURL string

	Logger log.Logger
}

// NewService creates the service facade.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		store:      cfg.Store,
		registry:   cfg.Registry,
		ingest:     cfg.Ingest,
		turns:      cfg.Turns,
		indexDir:   cfg.IndexDir,
		defaultURL: cfg.DefaultURL,
		logger:     cfg.Logger.With("component", "rag"),
	}
}

// CreateSession creates a chat session owned by owner and eagerly
// constructs its index so the first turn pays no setup cost. seedURL,
// or the configured default URL when seedURL is empty, is ingested in
// the background; the session is usable immediately and the seed
// corpus appears once ingestion finishes. Seed failures are logged,
// never surfaced.
func (s *Service) CreateSession(ctx context.Context, owner, name, seedURL string) (uuid.UUID, error) {
	chatID, err := s.store.CreateChat(ctx, owner, name)
	if err != nil {
		return uuid.Nil, err
	}
	if _, _, err := s.registry.GetOrCreate(ctx, owner, chatID); err != nil {
		return uuid.Nil, err
	}

	if seedURL == "" {
		seedURL = s.defaultURL
	}
	if seedURL != "" {
		go s.seedSession(context.WithoutCancel(ctx), owner, chatID, seedURL)
	}

	s.logger.Info("session created", "owner", owner, "chat_id", chatID.String())
	return chatID, nil
}

func (s *Service) seedSession(ctx context.Context, owner string, chatID uuid.UUID, seedURL string) {
	ctx, cancel := context.WithTimeout(ctx, defaultURLIngestTimeout)
	defer cancel()

	n, err := s.ingest.IngestURL(ctx, owner, chatID, seedURL)
	if err != nil {
		s.logger.Warn("seed url ingestion failed",
			"owner", owner, "chat_id", chatID.String(), "url", seedURL, "error", err)
		return
	}
	s.logger.Info("seed url ingested",
		"owner", owner, "chat_id", chatID.String(), "url", seedURL, "chunks", n)
}

// ListSessions returns the owner's sessions in creation order.
func (s *Service) ListSessions(ctx context.Context, owner string) ([]store.Chat, error) {
	return s.store.ListChats(ctx, owner)
}

// GetHistory returns the session transcript in turn order.
func (s *Service) GetHistory(ctx context.Context, owner string, chatID uuid.UUID) ([]store.Message, error) {
	return s.store.GetHistory(ctx, owner, chatID)
}

// IngestFile indexes an uploaded document into the session corpus and
// returns the number of chunks added.
func (s *Service) IngestFile(ctx context.Context, owner string, chatID uuid.UUID, filename string, r io.Reader) (int, error) {
	return s.ingest.IngestFile(ctx, owner, chatID, filename, r)
}

// IngestURL indexes a web page into the session corpus and returns the
// number of chunks added.
func (s *Service) IngestURL(ctx context.Context, owner string, chatID uuid.UUID, pageURL string) (int, error) {
	return s.ingest.IngestURL(ctx, owner, chatID, pageURL)
}

// StreamTurn runs one conversation turn; see chat.Pipeline.StreamTurn.
func (s *Service) StreamTurn(ctx context.Context, owner string, chatID uuid.UUID, query string) (<-chan chat.Event, error) {
	return s.turns.StreamTurn(ctx, owner, chatID, query)
}

// ClearChat resets the session to a blank slate: the transcript and the
// ingested corpus are wiped, the session itself survives. The next
// access rebuilds a fresh empty index at the same path.
func (s *Service) ClearChat(ctx context.Context, owner string, chatID uuid.UUID) error {
	if err := s.store.ClearMessages(ctx, owner, chatID); err != nil {
		return err
	}
	s.registry.Evict(owner, chatID)
	if err := index.RemoveArtifacts(s.indexDir, owner, chatID.String()); err != nil {
		s.logger.Warn("index artifact removal failed",
			"owner", owner, "chat_id", chatID.String(), "error", err)
	}
	s.logger.Info("session cleared", "owner", owner, "chat_id", chatID.String())
	return nil
}

// DeleteSession removes the session row and transcript, evicts the
// live resources and removes the persisted index artifacts. The
// durable record goes first; artifact removal is best effort and a
// failure leaves only orphaned files, never a dangling session.
func (s *Service) DeleteSession(ctx context.Context, owner string, chatID uuid.UUID) error {
	if err := s.store.DeleteChat(ctx, owner, chatID); err != nil {
		return err
	}
	s.registry.Evict(owner, chatID)
	if err := index.RemoveArtifacts(s.indexDir, owner, chatID.String()); err != nil {
		s.logger.Warn("index artifact removal failed",
			"owner", owner, "chat_id", chatID.String(), "error", err)
	}
	s.logger.Info("session deleted", "owner", owner, "chat_id", chatID.String())
	return nil
}
