package handler_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/identity-portal/internal/auth"
)

func TestIdentityHandler_HandleSignup(t *testing.T) {
	t.Run("success sends verification link for request host", func(t *testing.T) {
		env := newTestEnv(t)

		rr := httptest.NewRecorder()
		env.identity.HandleSignup(rr, jsonRequest(t, http.MethodPost, "/api/signup", signupBody("Jo@X.com")))

		assert.Equal(t, http.StatusOK, rr.Code)
		body := decodeBody(t, rr)
		assert.Equal(t, "success", body["status"])
		assert.Contains(t, body["message"], "Registration successful")

		msg := env.sender.last(t)
		assert.Equal(t, "jo@x.com", msg.To)
		assert.Contains(t, msg.Body, "http://example.com/verify?token=")
		assert.Contains(t, msg.Body, "24 hours")
	})

	t.Run("forwarded headers set the link origin", func(t *testing.T) {
		env := newTestEnv(t)

		req := jsonRequest(t, http.MethodPost, "/api/signup", signupBody("jo@x.com"))
		req.Header.Set("X-Forwarded-Proto", "https")
		req.Header.Set("X-Forwarded-Host", "portal.example.org, internal:8080")
		rr := httptest.NewRecorder()
		env.identity.HandleSignup(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, env.sender.last(t).Body, "https://portal.example.org/verify?token=")
	})

	t.Run("validation failure", func(t *testing.T) {
		env := newTestEnv(t)

		in := signupBody("jo@x.com")
		in["password"] = "Aa!aaaaa"
		in["confirmPassword"] = "Aa!aaaaa"
		rr := httptest.NewRecorder()
		env.identity.HandleSignup(rr, jsonRequest(t, http.MethodPost, "/api/signup", in))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "error", decodeBody(t, rr)["status"])
		assert.Empty(t, env.sender.sent)
	})

	t.Run("malformed body", func(t *testing.T) {
		env := newTestEnv(t)

		rr := httptest.NewRecorder()
		env.identity.HandleSignup(rr, httptest.NewRequest(http.MethodPost, "/api/signup", strings.NewReader(`{"email":`)))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("verified email conflicts", func(t *testing.T) {
		env := newTestEnv(t)
		env.signupAndVerify(t, "jo@x.com")

		rr := httptest.NewRecorder()
		env.identity.HandleSignup(rr, jsonRequest(t, http.MethodPost, "/api/signup", signupBody("jo@x.com")))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "Email already registered", decodeBody(t, rr)["message"])
	})

	t.Run("mail failure is a generic 500", func(t *testing.T) {
		env := newTestEnv(t)
		env.sender.err = errSMTPDown

		rr := httptest.NewRecorder()
		env.identity.HandleSignup(rr, jsonRequest(t, http.MethodPost, "/api/signup", signupBody("jo@x.com")))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		body := decodeBody(t, rr)
		assert.Equal(t, "An internal error occurred", body["message"])
		assert.NotContains(t, body["message"], "smtp")
	})
}

func TestIdentityHandler_HandleVerify(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	env.identity.HandleSignup(rr, jsonRequest(t, http.MethodPost, "/api/signup", signupBody("jo@x.com")))
	require.Equal(t, http.StatusOK, rr.Code)
	token := tokenFromMail(t, env.sender.last(t))

	t.Run("unknown token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		env.identity.HandleVerify(rr, httptest.NewRequest(http.MethodGet, "/api/verify?token=nope", nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("valid token verifies once", func(t *testing.T) {
		rr := httptest.NewRecorder()
		env.identity.HandleVerify(rr, httptest.NewRequest(http.MethodGet, "/api/verify?token="+token, nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "success", decodeBody(t, rr)["status"])

		rr = httptest.NewRecorder()
		env.identity.HandleVerify(rr, httptest.NewRequest(http.MethodGet, "/api/verify?token="+token, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestIdentityHandler_HandleLogin(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	env.identity.HandleSignup(rr, jsonRequest(t, http.MethodPost, "/api/signup", signupBody("jo@x.com")))
	require.Equal(t, http.StatusOK, rr.Code)

	login := func(email, password string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		env.identity.HandleLogin(rr, jsonRequest(t, http.MethodPost, "/api/login",
			map[string]string{"email": email, "password": password}))
		return rr
	}

	t.Run("unverified user is refused", func(t *testing.T) {
		rr := login("jo@x.com", testPassword)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "Please verify your email before logging in", decodeBody(t, rr)["message"])
		assert.Nil(t, sessionCookie(rr))
	})

	token := tokenFromMail(t, env.sender.last(t))
	rr = httptest.NewRecorder()
	env.identity.HandleVerify(rr, httptest.NewRequest(http.MethodGet, "/api/verify?token="+token, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	t.Run("wrong password and unknown email look the same", func(t *testing.T) {
		wrong := login("jo@x.com", "Bb2@bbbb")
		unknown := login("nobody@x.com", testPassword)

		assert.Equal(t, http.StatusBadRequest, wrong.Code)
		assert.Equal(t, wrong.Code, unknown.Code)
		assert.Equal(t, decodeBody(t, wrong), decodeBody(t, unknown))
	})

	t.Run("success sets session cookie", func(t *testing.T) {
		rr := login(" JO@x.com ", testPassword)
		require.Equal(t, http.StatusOK, rr.Code)

		body := decodeBody(t, rr)
		assert.Equal(t, "Login successful", body["message"])
		assert.Equal(t, "Jo", body["firstName"])
		assert.Equal(t, "Doe", body["lastName"])
		assert.Equal(t, "jo@x.com", body["email"])

		c := sessionCookie(rr)
		require.NotNil(t, c)
		assert.True(t, c.HttpOnly)

		session, err := env.sessions.Validate(c.Value)
		require.NoError(t, err)
		assert.Equal(t, auth.MethodLocal, session.Method)
	})
}

func TestIdentityHandler_HandleCurrentUser(t *testing.T) {
	env := newTestEnv(t)
	env.signupAndVerify(t, "jo@x.com")

	rr := httptest.NewRecorder()
	env.identity.HandleLogin(rr, jsonRequest(t, http.MethodPost, "/api/login",
		map[string]string{"email": "jo@x.com", "password": testPassword}))
	require.Equal(t, http.StatusOK, rr.Code)
	cookie := sessionCookie(rr)
	require.NotNil(t, cookie)

	protected := auth.RequireSession(env.sessions)(http.HandlerFunc(env.identity.HandleCurrentUser))

	t.Run("with session cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
		req.AddCookie(cookie)
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		body := decodeBody(t, rr)
		assert.Equal(t, "LOCAL", body["authType"])
		assert.Equal(t, "jo@x.com", body["email"])
		assert.Equal(t, "Jo", body["firstName"])
	})

	t.Run("without session", func(t *testing.T) {
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/auth/user", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("session for a missing user", func(t *testing.T) {
		token, err := env.sessions.Issue("no-such-user", auth.MethodLocal)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		protected.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestIdentityHandler_HandleLogout(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	env.identity.HandleLogout(rr, httptest.NewRequest(http.MethodPost, "/api/logout", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	c := sessionCookie(rr)
	require.NotNil(t, c)
	assert.Equal(t, "", c.Value)
	assert.Less(t, c.MaxAge, 0)
}

// TestSignupVerifyLogin walks the documented happy path through HTTP.
func TestSignupVerifyLogin(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	env.identity.HandleSignup(rr, jsonRequest(t, http.MethodPost, "/api/signup", map[string]string{
		"firstName":       "Jo",
		"lastName":        "Doe",
		"email":           "jo@x.com",
		"password":        "Aa1!aaaa",
		"confirmPassword": "Aa1!aaaa",
	}))
	require.Equal(t, http.StatusOK, rr.Code)

	token := tokenFromMail(t, env.sender.last(t))
	rr = httptest.NewRecorder()
	env.identity.HandleVerify(rr, httptest.NewRequest(http.MethodGet, "/api/verify?token="+token, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	env.identity.HandleLogin(rr, jsonRequest(t, http.MethodPost, "/api/login",
		map[string]string{"email": "jo@x.com", "password": "Aa1!aaaa"}))
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	assert.Equal(t, "Jo", body["firstName"])
	assert.Equal(t, "Doe", body["lastName"])
}
