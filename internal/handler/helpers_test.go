package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/identity-portal/internal/auth"
	"github.com/sakif/identity-portal/internal/handler"
	"github.com/sakif/identity-portal/internal/notify"
	"github.com/sakif/identity-portal/internal/repository/sqlite"
	"github.com/sakif/identity-portal/internal/service"
)

const testPassword = "Aa1!aaaa"

// captureSender records outgoing mail instead of delivering it.
type captureSender struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (c *captureSender) Send(_ context.Context, msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *captureSender) last(t *testing.T) notify.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.sent, "no message was sent")
	return c.sent[len(c.sent)-1]
}

type testEnv struct {
	store    *sqlite.DB
	sender   *captureSender
	sessions *auth.SessionIssuer
	service  *service.IdentityService
	identity *handler.IdentityHandler
	logger   *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sender := &captureSender{}
	svc := service.NewIdentityService(db, auth.NewPasswordHasherForTest(4), sender, nil, logger, service.IdentityOptions{})

	sessions, err := auth.NewSessionIssuer("handler-test-secret-0123456789", time.Hour)
	require.NoError(t, err)

	return &testEnv{
		store:    db,
		sender:   sender,
		sessions: sessions,
		service:  svc,
		identity: handler.NewIdentityHandler(svc, sessions, handler.CookieOptions{}, "http://fallback.test", logger),
		logger:   logger,
	}
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	return out
}

func signupBody(email string) map[string]string {
	return map[string]string{
		"firstName":       "Jo",
		"lastName":        "Doe",
		"email":           email,
		"password":        testPassword,
		"confirmPassword": testPassword,
	}
}

// tokenFromMail pulls the verification token out of an email body.
func tokenFromMail(t *testing.T, msg notify.Message) string {
	t.Helper()
	i := strings.Index(msg.Body, "token=")
	require.GreaterOrEqual(t, i, 0, "mail has no verification link: %q", msg.Body)
	raw := msg.Body[i+len("token="):]
	if j := strings.IndexAny(raw, "\r\n"); j >= 0 {
		raw = raw[:j]
	}
	token, err := url.QueryUnescape(raw)
	require.NoError(t, err)
	return token
}

// signupAndVerify registers email through the handlers and follows the
// emailed link.
func (e *testEnv) signupAndVerify(t *testing.T, email string) {
	t.Helper()

	rr := httptest.NewRecorder()
	e.identity.HandleSignup(rr, jsonRequest(t, http.MethodPost, "/api/signup", signupBody(email)))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	token := tokenFromMail(t, e.sender.last(t))
	rr = httptest.NewRecorder()
	e.identity.HandleVerify(rr, httptest.NewRequest(http.MethodGet, "/api/verify?token="+url.QueryEscape(token), nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.SessionCookie {
			return c
		}
	}
	return nil
}

var errSMTPDown = errors.New("smtp: connection refused")
