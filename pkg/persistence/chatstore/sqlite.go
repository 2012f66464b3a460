package chatstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/go-go-golems/parley/pkg/chat"
)

// SQLiteStore implements every store interface over a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ ConversationStore = &SQLiteStore{}
	_ TurnStore         = &SQLiteStore{}
	_ QueryCacheStore   = &SQLiteStore{}
)

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite store: open")
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			image TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT 'regular',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			visibility TEXT NOT NULL DEFAULT 'private',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			parts_json TEXT NOT NULL DEFAULT '[]',
			attachments_json TEXT NOT NULL DEFAULT '[]',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS query_cache (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			question_hash TEXT NOT NULL,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			hit_count INTEGER NOT NULL DEFAULT 1,
			created_at_ms INTEGER NOT NULL,
			expires_at_ms INTEGER NOT NULL DEFAULT 0,
			UNIQUE (question_hash, user_id, conversation_id)
		);`,
		`CREATE INDEX IF NOT EXISTS turns_by_conversation ON turns(conversation_id, created_at_ms ASC);`,
		`CREATE INDEX IF NOT EXISTS conversations_by_user ON conversations(user_id, created_at_ms DESC);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite store: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*chat.Conversation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("sqlite store: conversation id is empty")
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, visibility, created_at_ms
		FROM conversations WHERE id = ?
	`, id)
	var conv chat.Conversation
	var visibility string
	var createdMs int64
	if err := row.Scan(&conv.ID, &conv.UserID, &conv.Title, &visibility, &createdMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "sqlite store: get conversation")
	}
	conv.Visibility = chat.Visibility(visibility)
	conv.CreatedAt = time.UnixMilli(createdMs)
	return &conv, nil
}

func (s *SQLiteStore) InsertConversation(ctx context.Context, conv chat.Conversation) error {
	if strings.TrimSpace(conv.ID) == "" {
		return errors.New("sqlite store: conversation id is empty")
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	// The owner is immutable: an existing row is left untouched.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations(id, user_id, title, visibility, created_at_ms)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, conv.ID, conv.UserID, conv.Title, string(conv.Visibility), conv.CreatedAt.UnixMilli())
	return errors.Wrap(err, "sqlite store: insert conversation")
}

func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("sqlite store: conversation id is empty")
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	return errors.Wrap(err, "sqlite store: delete conversation")
}

func (s *SQLiteStore) InsertTurn(ctx context.Context, turn chat.Turn) error {
	if strings.TrimSpace(turn.ID) == "" {
		return errors.New("sqlite store: turn id is empty")
	}
	if strings.TrimSpace(turn.ConversationID) == "" {
		return errors.New("sqlite store: turn conversation id is empty")
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}
	partsJSON, err := marshalJSONArray(turn.Parts)
	if err != nil {
		return errors.Wrap(err, "sqlite store: marshal turn parts")
	}
	attachmentsJSON, err := marshalJSONArray(turn.Attachments)
	if err != nil {
		return errors.Wrap(err, "sqlite store: marshal turn attachments")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO turns(id, conversation_id, role, parts_json, attachments_json, created_at_ms)
		VALUES(?, ?, ?, ?, ?, ?)
	`, turn.ID, turn.ConversationID, string(turn.Role), partsJSON, attachmentsJSON, turn.CreatedAt.UnixMilli())
	return errors.Wrap(err, "sqlite store: insert turn")
}

func (s *SQLiteStore) ListTurns(ctx context.Context, conversationID string) ([]chat.Turn, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, errors.New("sqlite store: conversation id is empty")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, parts_json, attachments_json, created_at_ms
		FROM turns WHERE conversation_id = ?
		ORDER BY created_at_ms ASC, rowid ASC
	`, conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite store: list turns")
	}
	defer func() { _ = rows.Close() }()

	turns := []chat.Turn{}
	for rows.Next() {
		var (
			turn            chat.Turn
			role            string
			partsJSON       string
			attachmentsJSON string
			createdMs       int64
		)
		if err := rows.Scan(&turn.ID, &turn.ConversationID, &role, &partsJSON, &attachmentsJSON, &createdMs); err != nil {
			return nil, errors.Wrap(err, "sqlite store: scan turn")
		}
		turn.Role = chat.Role(role)
		turn.CreatedAt = time.UnixMilli(createdMs)
		if err := json.Unmarshal([]byte(partsJSON), &turn.Parts); err != nil {
			return nil, errors.Wrap(err, "sqlite store: parse turn parts")
		}
		if err := json.Unmarshal([]byte(attachmentsJSON), &turn.Attachments); err != nil {
			return nil, errors.Wrap(err, "sqlite store: parse turn attachments")
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "sqlite store: iterate turns")
	}
	return turns, nil
}

func (s *SQLiteStore) Lookup(ctx context.Context, questionHash, userID, conversationID string) (*chat.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, user_id, question_hash, question, answer, hit_count, created_at_ms, expires_at_ms
		FROM query_cache
		WHERE question_hash = ? AND user_id = ? AND conversation_id = ?
	`, questionHash, userID, conversationID)
	var entry chat.CacheEntry
	var createdMs, expiresMs int64
	err := row.Scan(&entry.ID, &entry.ConversationID, &entry.UserID, &entry.QuestionHash,
		&entry.Question, &entry.Answer, &entry.HitCount, &createdMs, &expiresMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "sqlite store: cache lookup")
	}
	entry.CreatedAt = time.UnixMilli(createdMs)
	if expiresMs > 0 {
		entry.ExpiresAt = time.UnixMilli(expiresMs)
	}
	if entry.Expired(time.Now()) {
		return nil, nil
	}
	return &entry, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, entry chat.CacheEntry) error {
	if strings.TrimSpace(entry.QuestionHash) == "" {
		return errors.New("sqlite store: cache question hash is empty")
	}
	if strings.TrimSpace(entry.ID) == "" {
		return errors.New("sqlite store: cache entry id is empty")
	}
	if entry.HitCount <= 0 {
		entry.HitCount = 1
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	var expiresMs int64
	if !entry.ExpiresAt.IsZero() {
		expiresMs = entry.ExpiresAt.UnixMilli()
	}
	// Only cache misses write, so the first writer wins.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_cache(id, conversation_id, user_id, question_hash, question, answer, hit_count, created_at_ms, expires_at_ms)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(question_hash, user_id, conversation_id) DO NOTHING
	`, entry.ID, entry.ConversationID, entry.UserID, entry.QuestionHash,
		entry.Question, entry.Answer, entry.HitCount, entry.CreatedAt.UnixMilli(), expiresMs)
	return errors.Wrap(err, "sqlite store: cache insert")
}

func (s *SQLiteStore) RecordHit(ctx context.Context, questionHash, userID, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE query_cache SET hit_count = hit_count + 1
		WHERE question_hash = ? AND user_id = ? AND conversation_id = ?
	`, questionHash, userID, conversationID)
	return errors.Wrap(err, "sqlite store: record cache hit")
}

func marshalJSONArray[T any](v []T) (string, error) {
	if len(v) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
