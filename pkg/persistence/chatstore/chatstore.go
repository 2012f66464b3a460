// Package chatstore persists users, conversations, turns, and cached answers.
//
// The canonical backend is SQLite; the query cache additionally has in-memory
// and Redis variants. All stores are safe for concurrent use and take a
// context on every operation.
package chatstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-go-golems/parley/pkg/chat"
)

// ConversationStore is keyed CRUD over conversations.
type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (*chat.Conversation, error)
	InsertConversation(ctx context.Context, conv chat.Conversation) error
	DeleteConversation(ctx context.Context, id string) error
}

// TurnStore appends and lists turns. Turns are never updated or deleted
// individually; they go away only when their conversation does.
type TurnStore interface {
	InsertTurn(ctx context.Context, turn chat.Turn) error
	ListTurns(ctx context.Context, conversationID string) ([]chat.Turn, error)
}

// QueryCacheStore is the answer cache. Lookup must treat expired entries as
// absent; RecordHit increments the hit counter monotonically.
type QueryCacheStore interface {
	Lookup(ctx context.Context, questionHash, userID, conversationID string) (*chat.CacheEntry, error)
	Insert(ctx context.Context, entry chat.CacheEntry) error
	RecordHit(ctx context.Context, questionHash, userID, conversationID string) error
}

// ErrNotFound is returned by point reads that require the row to exist.
var ErrNotFound = errors.New("chatstore: not found")

// Fingerprint computes the cache key for a question: SHA-256 over the
// lowercased, whitespace-collapsed, trimmed text. Stable across restarts.
func Fingerprint(question string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(question)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// SQLiteDSNForFile builds a SQLite DSN for a database file with the
// settings every store here expects.
func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("chatstore: empty db path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}
