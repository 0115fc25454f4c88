package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// =========================================================================
// HELPER
// =========================================================================

func newTestHasher() *PasswordHasher {
	return NewPasswordHasherForTest(bcrypt.MinCost)
}

// =========================================================================
// NewPasswordHasher TESTS
// =========================================================================

func TestNewPasswordHasher_ClampsCost(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"zero selects default", 0, DefaultCost},
		{"below minimum is raised", 4, MinProductionCost},
		{"above maximum is lowered", 20, MaxProductionCost},
		{"in range is kept", 11, 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewPasswordHasher(tt.in).Cost(); got != tt.want {
				t.Errorf("Cost() = %d, want %d", got, tt.want)
			}
		})
	}
}

// =========================================================================
// Hash TESTS
// =========================================================================

func TestHash_OutputIsSelfDescribing(t *testing.T) {
	h := newTestHasher()

	hash, err := h.Hash("Aa1!aaaa")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !IsHashed(hash) {
		t.Errorf("Hash() output %q does not carry a bcrypt prefix", hash)
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatalf("bcrypt.Cost() error = %v", err)
	}
	if cost != bcrypt.MinCost {
		t.Errorf("embedded cost = %d, want %d", cost, bcrypt.MinCost)
	}
}

func TestHash_SamePasswordProducesDifferentHashes(t *testing.T) {
	h := newTestHasher()

	hash1, _ := h.Hash("same-password")
	hash2, _ := h.Hash("same-password")

	if hash1 == hash2 {
		t.Error("Hash() produced identical hashes for the same password (salt must be random)")
	}
}

func TestHash_RejectsPasswordOver72Bytes(t *testing.T) {
	h := newTestHasher()

	if _, err := h.Hash(strings.Repeat("a", 73)); err == nil {
		t.Fatal("Hash() should return an error for passwords longer than 72 bytes")
	}
}

func TestHash_AcceptsPasswordExactly72Bytes(t *testing.T) {
	h := newTestHasher()

	if _, err := h.Hash(strings.Repeat("a", 72)); err != nil {
		t.Fatalf("Hash() should accept a 72-byte password, got error: %v", err)
	}
}

// =========================================================================
// Verify TESTS
// =========================================================================

func TestVerify_CorrectPassword(t *testing.T) {
	h := newTestHasher()

	hash, err := h.Hash("Aa1!aaaa")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if err := h.Verify(hash, "Aa1!aaaa"); err != nil {
		t.Errorf("Verify() error = %v, want nil", err)
	}
}

func TestVerify_WrongPassword(t *testing.T) {
	h := newTestHasher()

	hash, _ := h.Hash("Aa1!aaaa")
	err := h.Verify(hash, "Aa1!aaab")
	if !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("Verify() error = %v, want ErrPasswordMismatch", err)
	}
}

func TestVerify_GarbageHash(t *testing.T) {
	h := newTestHasher()

	err := h.Verify("not-a-bcrypt-hash", "whatever")
	if err == nil {
		t.Fatal("Verify() should fail against a malformed digest")
	}
	if errors.Is(err, ErrPasswordMismatch) {
		t.Error("malformed digest should not be reported as a plain mismatch")
	}
}

// =========================================================================
// IsHashed TESTS
// =========================================================================

func TestIsHashed(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy", true},
		{"$2b$12$abc", true},
		{"$2y$10$abc", true},
		{"$2x$10$abc", false},
		{"Aa1!aaaa", false},
		{"", false},
		{"$argon2id$v=19$m=65536", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			if got := IsHashed(tt.value); got != tt.want {
				t.Errorf("IsHashed(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
