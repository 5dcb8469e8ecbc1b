// Package store provides durable metadata storage for chat sessions and
// their transcripts, backed by SQLite.
//
// It is the source of truth for session existence and ownership: every
// session-scoped resource (index handle, agent, lock) is reachable only
// through a chat row held here, and AssertOwner is the sole authorization
// boundary in the system.
//
// Concurrency: the SQLite handle is not safely reentrant from multiple
// concurrent writers, so all mutating operations serialize through a single
// write mutex. Reads run without the mutex; deletes are single transactions,
// so a reader never observes a partially-applied delete.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/msalmanai62/rag-bot/internal/log"
)

// Store manages chat and message persistence.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex // serializes all writes (single logical writer)
	logger log.Logger
}

// Open opens (creating if necessary) the store at dbPath and applies
// pending migrations.
func Open(dbPath string, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateChat creates a new chat session owned by owner and returns its id.
// name may be empty.
func (s *Store) CreateChat(ctx context.Context, owner, name string) (uuid.UUID, error) {
	chatID := uuid.New()
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chats (chat_id, owner_id, name, created_at) VALUES (?, ?, ?, ?)",
		chatID.String(), owner, name, now,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("creating chat: %w", err)
	}

	s.logger.Debug("created chat", "chat_id", chatID, "owner_id", owner)
	return chatID, nil
}

// ListChats returns all chats owned by owner, ordered by creation.
func (s *Store) ListChats(ctx context.Context, owner string) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT chat_id, owner_id, name, created_at FROM chats WHERE owner_id = ? ORDER BY created_at, chat_id",
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("listing chats: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var (
			c     Chat
			rawID string
		)
		if err := rows.Scan(&rawID, &c.OwnerID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chat: %w", err)
		}
		if c.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("parsing chat id %q: %w", rawID, err)
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chats: %w", err)
	}

	return chats, nil
}

// AssertOwner verifies that chatID exists and is owned by owner.
// Returns ErrNotFound if the chat is absent, ErrPermissionDenied if the
// stored owner differs, nil otherwise.
//
// Every read or mutation of session-scoped state must call this first.
func (s *Store) AssertOwner(ctx context.Context, owner string, chatID uuid.UUID) error {
	var storedOwner string
	err := s.db.QueryRowContext(ctx,
		"SELECT owner_id FROM chats WHERE chat_id = ?",
		chatID.String(),
	).Scan(&storedOwner)

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, chatID)
	}
	if err != nil {
		return fmt.Errorf("looking up chat %s: %w", chatID, err)
	}
	if storedOwner != owner {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, chatID)
	}
	return nil
}

// AppendMessage appends a transcript entry for the chat.
// The caller is responsible for ownership assertion; the chat must exist or
// the foreign key constraint rejects the insert.
func (s *Store) AppendMessage(ctx context.Context, owner string, chatID uuid.UUID, role, content string) error {
	if role != RoleUser && role != RoleAssistant {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (chat_id, owner_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
		chatID.String(), owner, role, content, now,
	)
	if err != nil {
		return fmt.Errorf("appending %s message to chat %s: %w", role, chatID, err)
	}

	return nil
}

// GetHistory returns the chat's transcript in sequence order.
// Returns ErrNotFound / ErrPermissionDenied via AssertOwner.
func (s *Store) GetHistory(ctx context.Context, owner string, chatID uuid.UUID) ([]Message, error) {
	if err := s.AssertOwner(ctx, owner, chatID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, chat_id, owner_id, role, content, created_at FROM messages WHERE chat_id = ? ORDER BY id ASC",
		chatID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("loading history for chat %s: %w", chatID, err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			m     Message
			rawID string
		)
		if err := rows.Scan(&m.SequenceID, &rawID, &m.OwnerID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if m.ChatID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("parsing chat id %q: %w", rawID, err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return messages, nil
}

// DeleteChat removes the chat row and all its messages in one transaction.
// Returns ErrNotFound / ErrPermissionDenied via AssertOwner.
func (s *Store) DeleteChat(ctx context.Context, owner string, chatID uuid.UUID) error {
	if err := s.AssertOwner(ctx, owner, chatID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete of chat %s: %w", chatID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE chat_id = ?", chatID.String()); err != nil {
		return fmt.Errorf("deleting messages of chat %s: %w", chatID, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chats WHERE chat_id = ?", chatID.String()); err != nil {
		return fmt.Errorf("deleting chat %s: %w", chatID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete of chat %s: %w", chatID, err)
	}

	s.logger.Debug("deleted chat", "chat_id", chatID, "owner_id", owner)
	return nil
}

// ClearMessages deletes the chat's transcript but keeps the chat row.
// Returns ErrNotFound / ErrPermissionDenied via AssertOwner.
func (s *Store) ClearMessages(ctx context.Context, owner string, chatID uuid.UUID) error {
	if err := s.AssertOwner(ctx, owner, chatID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE chat_id = ?", chatID.String()); err != nil {
		return fmt.Errorf("clearing messages of chat %s: %w", chatID, err)
	}

	return nil
}
