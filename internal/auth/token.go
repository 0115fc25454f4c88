package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

const (
	verificationTokenBytes = 32

	// VerificationTokenTTL is how long an emailed verification link stays valid.
	VerificationTokenTTL = 24 * time.Hour
)

// NewVerificationToken returns 32 random bytes encoded as unpadded
// base64url, safe to embed in a query string.
func NewVerificationToken() (string, error) {
	b := make([]byte, verificationTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: generating verification token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// TokenExpired reports whether a token created at createdAt is past its
// lifetime at now. A token without a creation time is treated as expired.
func TokenExpired(createdAt *time.Time, now time.Time) bool {
	if createdAt == nil {
		return true
	}
	return now.After(createdAt.Add(VerificationTokenTTL))
}
