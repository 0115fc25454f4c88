package handler

import (
	"net/http"
	"time"

	"github.com/sakif/identity-portal/internal/auth"
)

const (
	stateCookie   = "sso_state"
	pkceCookie    = "sso_pkce"
	ssoCookiePath = "/api/auth/sso"
	ssoCookieTTL  = 10 * time.Minute
)

// CookieOptions controls attributes shared by every cookie the API sets.
// Secure should be on whenever the site is served over HTTPS.
type CookieOptions struct {
	Secure bool
}

func (o CookieOptions) setSession(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (o CookieOptions) clear(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (o CookieOptions) setFlow(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     ssoCookiePath,
		MaxAge:   int(ssoCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
