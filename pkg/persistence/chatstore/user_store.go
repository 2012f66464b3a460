package chatstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/parley/pkg/auth"
)

var _ auth.UserStore = &SQLiteStore{}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.New("sqlite store: email is empty")
	}
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, name, image, type, created_at_ms
		FROM users WHERE email = ?
	`, email))
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*auth.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("sqlite store: user id is empty")
	}
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, name, image, type, created_at_ms
		FROM users WHERE id = ?
	`, id))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*auth.User, error) {
	var u auth.User
	var userType string
	var createdMs int64
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Image, &userType, &createdMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "sqlite store: get user")
	}
	u.Type = auth.UserType(userType)
	u.CreatedAt = time.UnixMilli(createdMs)
	return &u, nil
}

func (s *SQLiteStore) InsertUser(ctx context.Context, user auth.User) error {
	if strings.TrimSpace(user.ID) == "" {
		return errors.New("sqlite store: user id is empty")
	}
	if strings.TrimSpace(user.Email) == "" {
		return errors.New("sqlite store: user email is empty")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users(id, email, password_hash, name, image, type, created_at_ms)
		VALUES(?, ?, ?, ?, ?, ?, ?)
	`, user.ID, strings.ToLower(strings.TrimSpace(user.Email)), user.PasswordHash,
		user.Name, user.Image, string(user.Type), user.CreatedAt.UnixMilli())
	return errors.Wrap(err, "sqlite store: insert user")
}
