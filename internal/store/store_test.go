package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msalmanai62/rag-bot/internal/log"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.sqlite"), log.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndListChats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateChat(ctx, "u1", "notes")
	require.NoError(t, err)
	second, err := s.CreateChat(ctx, "u1", "")
	require.NoError(t, err)
	_, err = s.CreateChat(ctx, "u2", "other")
	require.NoError(t, err)

	chats, err := s.ListChats(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, chats, 2)

	// Ordered by creation; only u1's chats visible.
	ids := []uuid.UUID{chats[0].ID, chats[1].ID}
	assert.Contains(t, ids, first)
	assert.Contains(t, ids, second)
	assert.Equal(t, "notes", chats[0].Name)
	assert.False(t, chats[0].CreatedAt.After(chats[1].CreatedAt))

	empty, err := s.ListChats(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAssertOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chatID, err := s.CreateChat(ctx, "u1", "")
	require.NoError(t, err)

	tests := []struct {
		name    string
		owner   string
		chatID  uuid.UUID
		wantErr error
	}{
		{"owner matches", "u1", chatID, nil},
		{"owner mismatch", "u2", chatID, ErrPermissionDenied},
		{"unknown chat", "u1", uuid.New(), ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.AssertOwner(ctx, tt.owner, tt.chatID)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestAppendMessageAndGetHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chatID, err := s.CreateChat(ctx, "u1", "")
	require.NoError(t, err)

	require.NoError(t, s.AppendMessage(ctx, "u1", chatID, RoleUser, "first question"))
	require.NoError(t, s.AppendMessage(ctx, "u1", chatID, RoleAssistant, "first answer"))
	require.NoError(t, s.AppendMessage(ctx, "u1", chatID, RoleUser, "second question"))

	history, err := s.GetHistory(ctx, "u1", chatID)
	require.NoError(t, err)
	require.Len(t, history, 3)

	assert.Equal(t, []string{"first question", "first answer", "second question"},
		[]string{history[0].Content, history[1].Content, history[2].Content})
	assert.Equal(t, []string{RoleUser, RoleAssistant, RoleUser},
		[]string{history[0].Role, history[1].Role, history[2].Role})

	// Sequence ids strictly increase in creation order.
	for i := 1; i < len(history); i++ {
		assert.Greater(t, history[i].SequenceID, history[i-1].SequenceID)
	}
}

func TestAppendMessage_InvalidRole(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chatID, err := s.CreateChat(ctx, "u1", "")
	require.NoError(t, err)

	err = s.AppendMessage(ctx, "u1", chatID, "system", "nope")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestGetHistory_Authorization(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chatID, err := s.CreateChat(ctx, "u1", "")
	require.NoError(t, err)

	_, err = s.GetHistory(ctx, "u2", chatID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = s.GetHistory(ctx, "u1", uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteChat(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chatID, err := s.CreateChat(ctx, "u1", "")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(ctx, "u1", chatID, RoleUser, "q"))
	require.NoError(t, s.AppendMessage(ctx, "u1", chatID, RoleAssistant, "a"))

	// Wrong owner cannot delete, and nothing changes.
	require.ErrorIs(t, s.DeleteChat(ctx, "u2", chatID), ErrPermissionDenied)
	history, err := s.GetHistory(ctx, "u1", chatID)
	require.NoError(t, err)
	require.Len(t, history, 2)

	require.NoError(t, s.DeleteChat(ctx, "u1", chatID))

	// Chat and messages are both gone; delete is not repeatable.
	_, err = s.GetHistory(ctx, "u1", chatID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteChat(ctx, "u1", chatID), ErrNotFound)

	chats, err := s.ListChats(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestClearMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chatID, err := s.CreateChat(ctx, "u1", "keep me")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(ctx, "u1", chatID, RoleUser, "q"))

	require.NoError(t, s.ClearMessages(ctx, "u1", chatID))

	history, err := s.GetHistory(ctx, "u1", chatID)
	require.NoError(t, err)
	assert.Empty(t, history)

	// The chat itself survives.
	chats, err := s.ListChats(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "keep me", chats[0].Name)
}

func TestConcurrentAppends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chatID, err := s.CreateChat(ctx, "u1", "")
	require.NoError(t, err)

	const writers = 8
	const perWriter = 10

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				err := s.AppendMessage(ctx, "u1", chatID, RoleUser, fmt.Sprintf("w%d-%d", w, i))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	history, err := s.GetHistory(ctx, "u1", chatID)
	require.NoError(t, err)
	assert.Len(t, history, writers*perWriter)

	for i := 1; i < len(history); i++ {
		assert.Greater(t, history[i].SequenceID, history[i-1].SequenceID)
	}
}

func TestOpen_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.sqlite")
	ctx := context.Background()

	s, err := Open(dbPath, log.NewNop())
	require.NoError(t, err)
	chatID, err := s.CreateChat(ctx, "u1", "persistent")
	require.NoError(t, err)
	require.NoError(t, s.AppendMessage(ctx, "u1", chatID, RoleUser, "hello"))
	require.NoError(t, s.Close())

	// Reopen: migrations are idempotent and data survives.
	s2, err := Open(dbPath, log.NewNop())
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	history, err := s2.GetHistory(ctx, "u1", chatID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Content)
}
