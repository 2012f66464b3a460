// Package auth provides credential accounts and JWT-backed sessions for the
// chat gateway. OAuth provider integration is deliberately absent; the user
// type column still distinguishes credential accounts from others so a
// provider can be added without a schema change.
package auth

import (
	"context"
	"time"
)

// UserType classifies how an account was created.
type UserType string

const (
	UserTypeRegular     UserType = "regular"
	UserTypeCredentials UserType = "credentials"
	UserTypeGuest       UserType = "guest"
)

// User is a stored account. PasswordHash is empty for accounts that never set
// a password (guests, future OAuth users).
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	Image        string
	Type         UserType
	CreatedAt    time.Time
}

// Session is the per-request identity the rest of the system sees. It is
// opaque beyond these fields.
type Session struct {
	UserID string
	Email  string
	Type   UserType
}

// UserStore is the storage collaborator the auth service depends on.
// Lookups return (nil, nil) when no account matches.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	InsertUser(ctx context.Context, user User) error
}
