// Package model defines the data structures used throughout the application.
package model

import "time"

// AuthProvider records which path created or last linked an account.
//
// Once an account is linked to the federated identity provider it stays
// FEDERATED, even if the user later signs in with a local password.
type AuthProvider string

const (
	ProviderLocal     AuthProvider = "LOCAL"
	ProviderFederated AuthProvider = "FEDERATED"
)

// User is the canonical identity record. One human maps to one User,
// whether they arrived through local signup, federated login, or both.
//
// Optional values use the empty string as "absent" (PasswordHash,
// VerificationToken, FederatedID) so the struct scans cleanly from both
// stores. TokenCreatedAt is a pointer because zero time is a real value
// in SQL and would make expiry checks ambiguous.
type User struct {
	ID                string       `json:"id"`
	Email             string       `json:"email"`
	FirstName         string       `json:"firstName"`
	LastName          string       `json:"lastName"`
	PasswordHash      string       `json:"-"` // bcrypt digest; empty for federated-only users
	Verified          bool         `json:"verified"`
	VerificationToken string       `json:"-"`
	TokenCreatedAt    *time.Time   `json:"-"`
	FederatedID       string       `json:"-"` // identity provider's "sub" claim
	AuthProvider      AuthProvider `json:"authProvider"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}

// HasCredential reports whether the user can log in with a password.
func (u *User) HasCredential() bool {
	return u.PasswordHash != ""
}

// IsFederated reports whether the account has ever been linked to the
// identity provider.
func (u *User) IsFederated() bool {
	return u.FederatedID != "" || u.AuthProvider == ProviderFederated
}

// Clone returns a deep copy, so callers can mutate a user fetched from an
// in-memory store without touching the stored record.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.TokenCreatedAt != nil {
		t := *u.TokenCreatedAt
		c.TokenCreatedAt = &t
	}
	return &c
}

// FederatedIdentity is what a verified ID token tells us about the caller.
type FederatedIdentity struct {
	Subject   string `json:"sub"`
	Email     string `json:"email"`
	FirstName string `json:"given_name"`
	LastName  string `json:"family_name"`

	// EmailVerified is nil when the provider omits the claim.
	EmailVerified *bool `json:"email_verified,omitempty"`
}

// EmailUnverified reports whether the provider explicitly said the email
// address has not been verified.
func (id FederatedIdentity) EmailUnverified() bool {
	return id.EmailVerified != nil && !*id.EmailVerified
}
