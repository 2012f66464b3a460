package auth

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
)

type credentialsBody struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword,omitempty"`
	Name            string `json:"name,omitempty"`
}

type sessionResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Type  string `json:"type"`
	} `json:"user"`
}

func newSessionResponse(session *Session, token string) sessionResponse {
	resp := sessionResponse{Token: token}
	resp.User.ID = session.UserID
	resp.User.Email = session.Email
	resp.User.Type = string(session.Type)
	return resp
}

// RegisterRoutes mounts the auth endpoints on the mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/register", s.handleRegister)
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/auth/guest", s.handleGuest)
}

func (s *Service) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body credentialsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid_data")
		return
	}
	session, token, err := s.Register(r.Context(), RegisterInput{
		Email:           body.Email,
		Password:        body.Password,
		ConfirmPassword: body.ConfirmPassword,
		Name:            body.Name,
	})
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeAuthError(w, http.StatusBadRequest, "invalid_data")
		return
	case errors.Is(err, ErrUserExists):
		writeAuthError(w, http.StatusConflict, "user_exists")
		return
	case err != nil:
		s.logger.Error().Err(err).Msg("registration failed")
		writeAuthError(w, http.StatusInternalServerError, "failed")
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(session, token))
}

func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body credentialsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAuthError(w, http.StatusBadRequest, "invalid_data")
		return
	}
	session, token, err := s.Login(r.Context(), body.Email, body.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		writeAuthError(w, http.StatusUnauthorized, "failed")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("login failed")
		writeAuthError(w, http.StatusInternalServerError, "failed")
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(session, token))
}

func (s *Service) handleGuest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, token, err := s.Guest(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("guest session failed")
		writeAuthError(w, http.StatusInternalServerError, "failed")
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(session, token))
}

func writeAuthError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"status": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
