package chatstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/parley/pkg/auth"
	"github.com/go-go-golems/parley/pkg/chat"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	store, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func insertTestConversation(t *testing.T, store *SQLiteStore, id, userID string) {
	t.Helper()
	require.NoError(t, store.InsertConversation(context.Background(), chat.Conversation{
		ID:         id,
		UserID:     userID,
		Title:      "New Chat",
		Visibility: chat.VisibilityPrivate,
		CreatedAt:  time.Now(),
	}))
}

func TestSQLiteDSNForFile(t *testing.T) {
	dsn, err := SQLiteDSNForFile("/tmp/x.db")
	require.NoError(t, err)
	require.Equal(t, "file:/tmp/x.db?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", dsn)

	_, err = SQLiteDSNForFile("  ")
	require.Error(t, err)
}

func TestConversationRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conv, err := store.GetConversation(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, conv)

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertConversation(ctx, chat.Conversation{
		ID:         "c1",
		UserID:     "user-1",
		Title:      "What is 5G?",
		Visibility: chat.VisibilityPublic,
		CreatedAt:  created,
	}))

	conv, err = store.GetConversation(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, conv)
	require.Equal(t, "user-1", conv.UserID)
	require.Equal(t, "What is 5G?", conv.Title)
	require.Equal(t, chat.VisibilityPublic, conv.Visibility)
	require.Equal(t, created.UnixMilli(), conv.CreatedAt.UnixMilli())
}

func TestConversationOwnerImmutable(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	insertTestConversation(t, store, "c1", "owner")
	require.NoError(t, store.InsertConversation(ctx, chat.Conversation{
		ID:     "c1",
		UserID: "intruder",
		Title:  "hijacked",
	}))

	conv, err := store.GetConversation(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "owner", conv.UserID)
	require.Equal(t, "New Chat", conv.Title)
}

func TestDeleteConversationCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	insertTestConversation(t, store, "c1", "user-1")
	require.NoError(t, store.InsertTurn(ctx, chat.Turn{
		ID:             "t1",
		ConversationID: "c1",
		Role:           chat.RoleUser,
		Parts:          []chat.Part{{Type: "text", Text: "hello"}},
	}))
	require.NoError(t, store.Insert(ctx, chat.CacheEntry{
		ID:             "e1",
		ConversationID: "c1",
		UserID:         "user-1",
		QuestionHash:   Fingerprint("hello"),
		Question:       "hello",
		Answer:         "hi there",
	}))

	require.NoError(t, store.DeleteConversation(ctx, "c1"))

	conv, err := store.GetConversation(ctx, "c1")
	require.NoError(t, err)
	require.Nil(t, conv)

	turns, err := store.ListTurns(ctx, "c1")
	require.NoError(t, err)
	require.Empty(t, turns)

	entry, err := store.Lookup(ctx, Fingerprint("hello"), "user-1", "c1")
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestTurnsOrderedByCreation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	insertTestConversation(t, store, "c1", "user-1")
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, store.InsertTurn(ctx, chat.Turn{
			ID:             id,
			ConversationID: "c1",
			Role:           chat.RoleUser,
			Parts:          []chat.Part{{Type: "text", Text: id}},
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}))
	}

	turns, err := store.ListTurns(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, turns, 3)
	require.Equal(t, "t1", turns[0].ID)
	require.Equal(t, "t2", turns[1].ID)
	require.Equal(t, "t3", turns[2].ID)
}

func TestTurnPartsAndAttachmentsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	insertTestConversation(t, store, "c1", "user-1")
	require.NoError(t, store.InsertTurn(ctx, chat.Turn{
		ID:             "t1",
		ConversationID: "c1",
		Role:           chat.RoleUser,
		Parts:          []chat.Part{{Type: "text", Text: "with attachment"}},
		Attachments:    []map[string]any{{"url": "https://example.com/f.png", "contentType": "image/png"}},
	}))

	turns, err := store.ListTurns(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.Equal(t, "with attachment", turns[0].Text())
	require.Len(t, turns[0].Attachments, 1)
	require.Equal(t, "https://example.com/f.png", turns[0].Attachments[0]["url"])
}

func TestCacheInsertLookupAndHit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	insertTestConversation(t, store, "c1", "user-1")
	hash := Fingerprint("What is 5G?")
	require.NoError(t, store.Insert(ctx, chat.CacheEntry{
		ID:             "e1",
		ConversationID: "c1",
		UserID:         "user-1",
		QuestionHash:   hash,
		Question:       "What is 5G?",
		Answer:         "5G is a wireless standard.",
		ExpiresAt:      time.Now().Add(24 * time.Hour),
	}))

	entry, err := store.Lookup(ctx, hash, "user-1", "c1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, "5G is a wireless standard.", entry.Answer)
	require.Equal(t, 1, entry.HitCount)

	require.NoError(t, store.RecordHit(ctx, hash, "user-1", "c1"))
	entry, err = store.Lookup(ctx, hash, "user-1", "c1")
	require.NoError(t, err)
	require.Equal(t, 2, entry.HitCount)
}

func TestCacheFirstWriterWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	insertTestConversation(t, store, "c1", "user-1")
	hash := Fingerprint("q")
	first := chat.CacheEntry{
		ID: "e1", ConversationID: "c1", UserID: "user-1",
		QuestionHash: hash, Question: "q", Answer: "first answer",
	}
	second := first
	second.ID = "e2"
	second.Answer = "second answer"

	require.NoError(t, store.Insert(ctx, first))
	require.NoError(t, store.Insert(ctx, second))

	entry, err := store.Lookup(ctx, hash, "user-1", "c1")
	require.NoError(t, err)
	require.Equal(t, "first answer", entry.Answer)
}

func TestCacheExpiredEntryIsMiss(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	insertTestConversation(t, store, "c1", "user-1")
	hash := Fingerprint("q")
	require.NoError(t, store.Insert(ctx, chat.CacheEntry{
		ID: "e1", ConversationID: "c1", UserID: "user-1",
		QuestionHash: hash, Question: "q", Answer: "stale",
		CreatedAt: time.Now().Add(-25 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}))

	entry, err := store.Lookup(ctx, hash, "user-1", "c1")
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestCacheScopedToUserAndConversation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	insertTestConversation(t, store, "c1", "user-1")
	insertTestConversation(t, store, "c2", "user-1")
	hash := Fingerprint("q")
	require.NoError(t, store.Insert(ctx, chat.CacheEntry{
		ID: "e1", ConversationID: "c1", UserID: "user-1",
		QuestionHash: hash, Question: "q", Answer: "scoped answer",
	}))

	entry, err := store.Lookup(ctx, hash, "user-1", "c2")
	require.NoError(t, err)
	require.Nil(t, entry)

	entry, err = store.Lookup(ctx, hash, "user-2", "c1")
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestUserStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	u, err := store.GetUserByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	require.Nil(t, u)

	require.NoError(t, store.InsertUser(ctx, auth.User{
		ID:           "u1",
		Email:        "Alice@Example.com",
		PasswordHash: "hash",
		Name:         "Alice",
		Type:         auth.UserTypeCredentials,
	}))

	u, err = store.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	require.Equal(t, "u1", u.ID)
	require.Equal(t, "alice@example.com", u.Email)
	require.Equal(t, auth.UserTypeCredentials, u.Type)

	u, err = store.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, u)
	require.Equal(t, "Alice", u.Name)

	err = store.InsertUser(ctx, auth.User{ID: "u2", Email: "alice@example.com"})
	require.Error(t, err, "duplicate email must be rejected")
}
