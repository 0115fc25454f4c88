package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionIssuer = "identity-portal"

	// DefaultSessionTTL is how long a login session cookie stays valid.
	DefaultSessionTTL = 8 * time.Hour
)

// Session methods recorded in the token, reported by GET /api/auth/user.
const (
	MethodLocal = "LOCAL"
	MethodSSO   = "SSO"
)

// SessionIssuer mints and validates the HS256 session tokens handed out
// after a successful local or federated login.
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewSessionIssuer requires a secret of at least 16 characters.
// Generate one with: openssl rand -hex 32
func NewSessionIssuer(secret string, ttl time.Duration) (*SessionIssuer, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionIssuer{secret: []byte(secret), ttl: ttl}, nil
}

// TTL returns the lifetime of issued sessions.
func (s *SessionIssuer) TTL() time.Duration {
	return s.ttl
}

// Session is the decoded content of a valid session token.
type Session struct {
	UserID    string
	Method    string // MethodLocal or MethodSSO
	ExpiresAt time.Time
}

type sessionClaims struct {
	Method string `json:"amr"`
	jwt.RegisteredClaims
}

// Issue signs a session for userID using the default TTL.
func (s *SessionIssuer) Issue(userID, method string) (string, error) {
	return s.IssueWithDuration(userID, method, s.ttl)
}

// IssueWithDuration signs a session with a custom lifetime. Tests use a
// negative duration to produce expired tokens.
func (s *SessionIssuer) IssueWithDuration(userID, method string, d time.Duration) (string, error) {
	now := time.Now()

	c := sessionClaims{
		Method: method,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    sessionIssuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing session: %w", err)
	}
	return signed, nil
}

// Validate parses a session token, checking signature, algorithm,
// issuer, and expiry.
func (s *SessionIssuer) Validate(tokenStr string) (*Session, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&sessionClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: session expired")
		}
		return nil, fmt.Errorf("auth: invalid session: %w", err)
	}

	c, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid session claims")
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("auth: session has no subject")
	}

	session := &Session{UserID: c.Subject, Method: c.Method}
	if c.ExpiresAt != nil {
		session.ExpiresAt = c.ExpiresAt.Time
	}
	return session, nil
}
