package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/msalmanai62/rag-bot/internal/index"
	"github.com/msalmanai62/rag-bot/internal/log"
	"github.com/msalmanai62/rag-bot/internal/store"
)

const tracerName = "github.com/msalmanai62/rag-bot/internal/ingest"

// HandleSource resolves a session's index handle and ingestion lock.
// Implemented by registry.Registry.
type HandleSource interface {
	GetOrCreate(ctx context.Context, owner string, chatID uuid.UUID) (*index.Handle, *sync.Mutex, error)
}

// Pipeline ingests documents into session indexes. Ownership is
// asserted before any resource is touched, and the write into the
// index happens under the session's ingestion lock so concurrent
// ingestions into one session serialize.
type Pipeline struct {
	store    *store.Store
	handles  HandleSource
	splitter *Splitter
	client   *http.Client
	maxBytes int64
	logger   log.Logger
}

// NewPipeline creates an ingestion pipeline. client may be nil, in
// which case URL fetches use a default client with a 30 second timeout.
func NewPipeline(st *store.Store, handles HandleSource, splitter *Splitter, client *http.Client, maxBytes int64, logger log.Logger) *Pipeline {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Pipeline{
		store:    st,
		handles:  handles,
		splitter: splitter,
		client:   client,
		maxBytes: maxBytes,
		logger:   logger.With("component", "ingest"),
	}
}

// IngestFile extracts text from an uploaded document and indexes it
// into the session's corpus. Returns the number of chunks added.
func (p *Pipeline) IngestFile(ctx context.Context, owner string, chatID uuid.UUID, filename string, r io.Reader) (int, error) {
	if err := p.store.AssertOwner(ctx, owner, chatID); err != nil {
		return 0, err
	}
	text, err := ExtractFile(filename, r, p.maxBytes)
	if err != nil {
		return 0, err
	}
	return p.ingestText(ctx, owner, chatID, filename, text)
}

// IngestURL fetches a page, extracts its readable text and indexes it
// into the session's corpus. Returns the number of chunks added.
func (p *Pipeline) IngestURL(ctx context.Context, owner string, chatID uuid.UUID, pageURL string) (int, error) {
	if err := p.store.AssertOwner(ctx, owner, chatID); err != nil {
		return 0, err
	}
	text, err := ExtractURL(ctx, p.client, pageURL, p.maxBytes)
	if err != nil {
		return 0, err
	}
	return p.ingestText(ctx, owner, chatID, pageURL, text)
}

func (p *Pipeline) ingestText(ctx context.Context, owner string, chatID uuid.UUID, source, text string) (int, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ingest.document",
		trace.WithAttributes(
			attribute.String("chat.id", chatID.String()),
			attribute.String("document.source", source),
		))
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("%w: %s", ErrEmptyDocument, source)
	}
	chunks := p.splitter.Split(text, source)

	handle, lock, err := p.handles.GetOrCreate(ctx, owner, chatID)
	if err != nil {
		return 0, fmt.Errorf("%w: resolve session index: %w", ErrIngestionFailed, err)
	}

	lock.Lock()
	defer lock.Unlock()
	if err := handle.Add(ctx, chunks); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "index add failed")
		return 0, fmt.Errorf("%w: index %s: %w", ErrIngestionFailed, source, err)
	}
	span.SetAttributes(attribute.Int("document.chunks", len(chunks)))

	p.logger.Info("document ingested",
		"owner", owner, "chat_id", chatID.String(), "source", source, "chunks", len(chunks))
	return len(chunks), nil
}
