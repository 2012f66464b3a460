package auth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Service implements register/login/guest flows on top of a UserStore and a
// TokenIssuer.
type Service struct {
	store  UserStore
	tokens *TokenIssuer
	logger zerolog.Logger
}

var (
	// ErrInvalidCredentials covers unknown accounts and wrong passwords alike.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrUserExists is returned when registering an email that is taken.
	ErrUserExists = errors.New("auth: user already exists")
	// ErrInvalidInput is returned when registration input fails validation.
	ErrInvalidInput = errors.New("auth: invalid input")
)

func NewService(store UserStore, tokens *TokenIssuer, logger zerolog.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth service: store is nil")
	}
	if tokens == nil {
		return nil, errors.New("auth service: token issuer is nil")
	}
	return &Service{
		store:  store,
		tokens: tokens,
		logger: logger.With().Str("component", "auth").Logger(),
	}, nil
}

// RegisterInput is the registration form payload.
type RegisterInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	Name            string
}

func (in RegisterInput) validate() error {
	if _, err := mail.ParseAddress(strings.TrimSpace(in.Email)); err != nil {
		return errors.Wrap(ErrInvalidInput, "email")
	}
	if len(in.Password) < 6 {
		return errors.Wrap(ErrInvalidInput, "password too short")
	}
	if in.Password != in.ConfirmPassword {
		return errors.Wrap(ErrInvalidInput, "passwords do not match")
	}
	if len(strings.TrimSpace(in.Name)) < 2 {
		return errors.Wrap(ErrInvalidInput, "name too short")
	}
	return nil
}

// Register creates a credentials account and signs it in immediately.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, string, error) {
	if err := in.validate(); err != nil {
		return nil, "", err
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))

	existing, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, "", errors.Wrap(err, "check existing user")
	}
	if existing != nil {
		return nil, "", ErrUserExists
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, "", err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	user := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Type:         UserTypeCredentials,
		CreatedAt:    time.Now(),
	}
	if err := s.store.InsertUser(ctx, user); err != nil {
		return nil, "", errors.Wrap(err, "insert user")
	}
	s.logger.Info().Str("user_id", user.ID).Msg("registered user")

	return s.Login(ctx, email, in.Password)
}

// Login verifies credentials and returns a session plus a signed token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, string, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, "", errors.Wrap(err, "look up user")
	}
	if user == nil || user.PasswordHash == "" || !VerifyPassword(password, user.PasswordHash) {
		return nil, "", ErrInvalidCredentials
	}
	session := Session{UserID: user.ID, Email: user.Email, Type: user.Type}
	token, err := s.tokens.Issue(session)
	if err != nil {
		return nil, "", err
	}
	return &session, token, nil
}

// Guest creates a throwaway account and a session for it.
func (s *Service) Guest(ctx context.Context) (*Session, string, error) {
	id := uuid.NewString()
	user := User{
		ID:        id,
		Email:     fmt.Sprintf("guest-%s@parley.local", id[:8]),
		Name:      "Guest",
		Type:      UserTypeGuest,
		CreatedAt: time.Now(),
	}
	if err := s.store.InsertUser(ctx, user); err != nil {
		return nil, "", errors.Wrap(err, "insert guest user")
	}
	session := Session{UserID: user.ID, Email: user.Email, Type: user.Type}
	token, err := s.tokens.Issue(session)
	if err != nil {
		return nil, "", err
	}
	return &session, token, nil
}

// VerifyToken exposes token verification for middleware.
func (s *Service) VerifyToken(token string) (*Session, error) {
	return s.tokens.Verify(token)
}
