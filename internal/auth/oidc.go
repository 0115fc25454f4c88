package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/sakif/identity-portal/internal/model"
)

// ErrInvalidIDToken is returned when an ID token fails verification.
var ErrInvalidIDToken = errors.New("auth: invalid id token")

// FederationClient wraps an OpenID Connect provider: it verifies ID tokens
// presented by the browser and drives the authorization code flow (with
// PKCE) for the server-side redirect login.
type FederationClient struct {
	verifier *oidc.IDTokenVerifier
	oauth    *oauth2.Config
}

// FederationOptions describes one realm of the identity provider.
type FederationOptions struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// NewFederationClient performs OIDC discovery against IssuerURL
// (GET {issuer}/.well-known/openid-configuration) and builds a client
// from the advertised endpoints and key set.
func NewFederationClient(ctx context.Context, opts FederationOptions) (*FederationClient, error) {
	provider, err := oidc.NewProvider(ctx, opts.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("auth: discovering %s: %w", opts.IssuerURL, err)
	}

	return NewFederationClientWithVerifier(
		provider.Verifier(&oidc.Config{ClientID: opts.ClientID}),
		&oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
	), nil
}

// NewFederationClientWithVerifier builds a client around an existing
// verifier. oauthCfg may be nil when only token verification is needed.
func NewFederationClientWithVerifier(v *oidc.IDTokenVerifier, oauthCfg *oauth2.Config) *FederationClient {
	return &FederationClient{verifier: v, oauth: oauthCfg}
}

// Discover fetches the discovery document and returns the issuer it
// advertises. It is used to test connectivity before saving settings.
func Discover(ctx context.Context, issuerURL string) (string, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return "", err
	}
	var meta struct {
		Issuer string `json:"issuer"`
	}
	if err := provider.Claims(&meta); err != nil {
		return "", fmt.Errorf("auth: reading discovery document: %w", err)
	}
	return meta.Issuer, nil
}

// VerifyIDToken checks signature, issuer, audience, and expiry of raw and
// returns the identity it asserts.
func (c *FederationClient) VerifyIDToken(ctx context.Context, raw string) (*model.FederatedIdentity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidIDToken
	}

	tok, err := c.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}

	// Some providers send email_verified as the string "true".
	var claims struct {
		model.FederatedIdentity
		EmailVerified any `json:"email_verified"`
	}
	if err := tok.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: decoding claims: %v", ErrInvalidIDToken, err)
	}
	id := claims.FederatedIdentity
	id.Subject = tok.Subject
	switch v := claims.EmailVerified.(type) {
	case bool:
		id.EmailVerified = &v
	case string:
		b := strings.EqualFold(v, "true")
		id.EmailVerified = &b
	}
	if id.Subject == "" || id.Email == "" {
		return nil, fmt.Errorf("%w: missing sub or email claim", ErrInvalidIDToken)
	}
	return &id, nil
}

// AuthCodeURL returns the provider login URL for the redirect flow. The
// PKCE verifier must be kept (in a cookie) and passed back to Exchange.
func (c *FederationClient) AuthCodeURL(state, pkceVerifier string) (string, error) {
	if c.oauth == nil {
		return "", errors.New("auth: redirect flow not configured")
	}
	return c.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(pkceVerifier)), nil
}

// Exchange trades an authorization code for tokens and verifies the ID
// token that comes back with them.
func (c *FederationClient) Exchange(ctx context.Context, code, pkceVerifier string) (*model.FederatedIdentity, error) {
	if c.oauth == nil {
		return nil, errors.New("auth: redirect flow not configured")
	}

	token, err := c.oauth.Exchange(ctx, code, oauth2.VerifierOption(pkceVerifier))
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging code: %w", err)
	}

	rawID, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("%w: token response carries no id_token", ErrInvalidIDToken)
	}
	return c.VerifyIDToken(ctx, rawID)
}

// NewPKCEVerifier returns a fresh PKCE code verifier.
func NewPKCEVerifier() string {
	return oauth2.GenerateVerifier()
}
