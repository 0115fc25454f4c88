package auth

import (
	"context"
	"net/http"
	"strings"
)

// SessionCookie is the name of the HttpOnly cookie carrying the session token.
const SessionCookie = "session"

// contextKey keeps session values private to this package.
type contextKey string

const sessionKey contextKey = "session"

// RequireSession rejects requests without a valid session with 401 and
// stores the decoded Session in the request context otherwise.
//
// The token is read from the session cookie first, then from an
// "Authorization: Bearer" header for non-browser clients.
func RequireSession(issuer *SessionIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := extractSession(r, issuer)
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"status":"error","message":"Not authenticated"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

// WithSession returns a copy of ctx carrying session.
func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// SessionFromContext returns the session stored by RequireSession.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok && s != nil && s.UserID != ""
}

func extractSession(r *http.Request, issuer *SessionIssuer) (*Session, bool) {
	var raw string
	if c, err := r.Cookie(SessionCookie); err == nil {
		raw = c.Value
	} else if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		raw = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if raw == "" {
		return nil, false
	}
	session, err := issuer.Validate(raw)
	if err != nil {
		return nil, false
	}
	return session, true
}
