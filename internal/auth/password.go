// Package auth holds the credential primitives: password hashing,
// verification tokens, session tokens, and the federated identity client.
//
// Password digests are bcrypt strings:
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (2^12 rounds)
//	 version
//
// The version prefix makes a digest self-describing, which is what
// IsHashed relies on to tell a digest from a legacy plaintext value.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost is the bcrypt work factor used in production.
	DefaultCost = 12

	// MinProductionCost and MaxProductionCost bound the configurable cost.
	MinProductionCost = 10
	MaxProductionCost = 14

	// maxPasswordBytes is bcrypt's input limit. Longer input would be
	// silently truncated.
	maxPasswordBytes = 72
)

// ErrPasswordMismatch is returned by Verify when the password is wrong.
var ErrPasswordMismatch = errors.New("auth: invalid password")

// bcryptPrefixes are the version tags bcrypt implementations emit.
var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

// PasswordHasher provides bcrypt hashing and verification.
//
// It's a struct so the cost can be injected: tests use bcrypt.MinCost to
// keep each hash in the microsecond range.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher returns a hasher with the given cost clamped to
// [MinProductionCost, MaxProductionCost]. A zero cost selects DefaultCost.
func NewPasswordHasher(cost int) *PasswordHasher {
	switch {
	case cost == 0:
		cost = DefaultCost
	case cost < MinProductionCost:
		cost = MinProductionCost
	case cost > MaxProductionCost:
		cost = MaxProductionCost
	}
	return &PasswordHasher{cost: cost}
}

// NewPasswordHasherForTest returns a hasher with an unclamped cost.
// Do NOT use in production: cost 4 is far too weak.
func NewPasswordHasherForTest(cost int) *PasswordHasher {
	return &PasswordHasher{cost: cost}
}

// Cost returns the configured work factor.
func (p *PasswordHasher) Cost() int {
	return p.cost
}

// Hash hashes the given plaintext password with bcrypt.
func (p *PasswordHasher) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", fmt.Errorf("auth: password must be %d bytes or fewer", maxPasswordBytes)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify checks a plaintext password against a stored digest.
// It returns nil on match and ErrPasswordMismatch on mismatch.
// bcrypt.CompareHashAndPassword compares in constant time.
func (p *PasswordHasher) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}

// IsHashed reports whether value already carries a bcrypt version prefix.
func IsHashed(value string) bool {
	for _, prefix := range bcryptPrefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}
