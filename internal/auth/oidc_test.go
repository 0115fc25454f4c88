package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const (
	testIssuer   = "http://idp.test/realms/webportal"
	testClientID = "webportal-client"
)

// =========================================================================
// HELPERS
// =========================================================================

func newTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	return key
}

func signIDToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("signing id token: %v", err)
	}
	return tok
}

func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":         testIssuer,
		"aud":         testClientID,
		"sub":         "kc-sub-1",
		"email":       "alice@example.com",
		"given_name":  "Alice",
		"family_name": "Liddell",
		"iat":         now.Unix(),
		"exp":         now.Add(5 * time.Minute).Unix(),
	}
}

func newTestFederationClient(key *rsa.PrivateKey, oauthCfg *oauth2.Config) *FederationClient {
	keySet := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	v := oidc.NewVerifier(testIssuer, keySet, &oidc.Config{ClientID: testClientID})
	return NewFederationClientWithVerifier(v, oauthCfg)
}

// =========================================================================
// VerifyIDToken TESTS
// =========================================================================

func TestVerifyIDToken_Valid(t *testing.T) {
	key := newTestKey(t)
	c := newTestFederationClient(key, nil)

	id, err := c.VerifyIDToken(context.Background(), signIDToken(t, key, validClaims()))
	if err != nil {
		t.Fatalf("VerifyIDToken() error = %v", err)
	}
	if id.Subject != "kc-sub-1" || id.Email != "alice@example.com" {
		t.Errorf("identity = %+v", id)
	}
	if id.FirstName != "Alice" || id.LastName != "Liddell" {
		t.Errorf("names = %q %q", id.FirstName, id.LastName)
	}
}

func TestVerifyIDToken_EmailVerifiedClaim(t *testing.T) {
	key := newTestKey(t)
	c := newTestFederationClient(key, nil)

	tests := []struct {
		name  string
		claim any // nil leaves the claim out
		want  string
	}{
		{"absent", nil, "unknown"},
		{"true", true, "verified"},
		{"false", false, "unverified"},
		{"string false", "false", "unverified"},
		{"string true", "TRUE", "verified"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := validClaims()
			if tt.claim != nil {
				claims["email_verified"] = tt.claim
			}
			id, err := c.VerifyIDToken(context.Background(), signIDToken(t, key, claims))
			if err != nil {
				t.Fatalf("VerifyIDToken() error = %v", err)
			}
			got := "unknown"
			if id.EmailVerified != nil {
				got = "verified"
				if !*id.EmailVerified {
					got = "unverified"
				}
			}
			if got != tt.want {
				t.Errorf("email_verified = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestVerifyIDToken_Rejects(t *testing.T) {
	key := newTestKey(t)
	other := newTestKey(t)
	c := newTestFederationClient(key, nil)

	tests := []struct {
		name  string
		token func() string
	}{
		{"empty", func() string { return "" }},
		{"garbage", func() string { return "a.b.c" }},
		{"wrong key", func() string { return signIDToken(t, other, validClaims()) }},
		{"wrong audience", func() string {
			cl := validClaims()
			cl["aud"] = "someone-else"
			return signIDToken(t, key, cl)
		}},
		{"wrong issuer", func() string {
			cl := validClaims()
			cl["iss"] = "http://evil.test"
			return signIDToken(t, key, cl)
		}},
		{"expired", func() string {
			cl := validClaims()
			cl["exp"] = time.Now().Add(-time.Hour).Unix()
			return signIDToken(t, key, cl)
		}},
		{"missing email", func() string {
			cl := validClaims()
			delete(cl, "email")
			return signIDToken(t, key, cl)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.VerifyIDToken(context.Background(), tt.token())
			if !errors.Is(err, ErrInvalidIDToken) {
				t.Fatalf("VerifyIDToken() error = %v, want ErrInvalidIDToken", err)
			}
		})
	}
}

// =========================================================================
// REDIRECT FLOW TESTS
// =========================================================================

func TestAuthCodeURL_CarriesStateAndChallenge(t *testing.T) {
	key := newTestKey(t)
	c := newTestFederationClient(key, &oauth2.Config{
		ClientID:    testClientID,
		RedirectURL: "http://localhost:8080/api/auth/sso/callback",
		Endpoint:    oauth2.Endpoint{AuthURL: "http://idp.test/auth", TokenURL: "http://idp.test/token"},
	})

	raw, err := c.AuthCodeURL("state-123", NewPKCEVerifier())
	if err != nil {
		t.Fatalf("AuthCodeURL() error = %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	q := u.Query()
	if q.Get("state") != "state-123" {
		t.Errorf("state = %q", q.Get("state"))
	}
	if q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "" {
		t.Errorf("missing PKCE challenge in %s", raw)
	}
}

func TestAuthCodeURL_NotConfigured(t *testing.T) {
	c := newTestFederationClient(newTestKey(t), nil)
	if _, err := c.AuthCodeURL("s", "v"); err == nil {
		t.Fatal("AuthCodeURL() should fail without an oauth config")
	}
}

func TestExchange_VerifiesReturnedIDToken(t *testing.T) {
	key := newTestKey(t)
	idToken := signIDToken(t, key, validClaims())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if r.PostForm.Get("code_verifier") == "" {
			t.Error("token request is missing code_verifier")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at",
			"token_type":   "Bearer",
			"expires_in":   300,
			"id_token":     idToken,
		})
	}))
	defer srv.Close()

	c := newTestFederationClient(key, &oauth2.Config{
		ClientID:     testClientID,
		ClientSecret: "s3cret",
		Endpoint:     oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"},
	})

	id, err := c.Exchange(context.Background(), "code-1", NewPKCEVerifier())
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if id.Subject != "kc-sub-1" {
		t.Errorf("Subject = %q", id.Subject)
	}
}

// =========================================================================
// Discover TESTS
// =========================================================================

func TestDiscover(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/auth",
			"token_endpoint":         srv.URL + "/token",
			"jwks_uri":               srv.URL + "/certs",
			"userinfo_endpoint":      srv.URL + "/userinfo",
		})
	}))
	defer srv.Close()

	issuer, err := Discover(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if issuer != srv.URL {
		t.Errorf("issuer = %q, want %q", issuer, srv.URL)
	}
}

func TestDiscover_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	if _, err := Discover(context.Background(), srv.URL); err == nil {
		t.Fatal("Discover() should fail when discovery document is missing")
	}
}
