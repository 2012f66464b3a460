package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey struct{}

// SessionFromContext returns the session attached by Middleware, or nil when
// the request carried no valid token.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}

// ContextWithSession attaches a session. Exposed for handler tests.
func ContextWithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// SessionCookieName is the cookie checked alongside the Authorization header.
const SessionCookieName = "session"

// Middleware resolves the session token from the Authorization header or the
// session cookie and attaches it to the request context. Requests without a
// valid token pass through with no session; handlers decide whether that is
// an error.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			if c, err := r.Cookie(SessionCookieName); err == nil {
				token = c.Value
			}
		}
		if token != "" {
			if session, err := s.VerifyToken(token); err == nil {
				r = r.WithContext(ContextWithSession(r.Context(), session))
			} else {
				s.logger.Debug().Err(err).Msg("rejected session token")
			}
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
