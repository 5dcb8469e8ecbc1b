package store

import (
	"time"

	"github.com/google/uuid"
)

// Role constants define valid message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Chat represents a chat session record.
// Immutable after creation except for deletion.
type Chat struct {
	ID        uuid.UUID
	OwnerID   string
	Name      string
	CreatedAt time.Time
}

// Message represents a single transcript entry.
// SequenceID is assigned by the database (autoincrement) and equals
// creation order within the store.
type Message struct {
	SequenceID int64
	ChatID     uuid.UUID
	OwnerID    string
	Role       string // "user" | "assistant"
	Content    string
	CreatedAt  time.Time
}
