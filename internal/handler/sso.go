package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/xid"

	"github.com/sakif/identity-portal/internal/apperror"
	"github.com/sakif/identity-portal/internal/auth"
	"github.com/sakif/identity-portal/internal/model"
	"github.com/sakif/identity-portal/internal/service"
)

// FederationSource resolves the SSO settings in effect.
type FederationSource interface {
	Resolve(ctx context.Context) (model.FederationConfig, error)
}

// ClientFactory builds a federation client for one realm. The server uses
// auth.NewFederationClient, which performs OIDC discovery.
type ClientFactory func(ctx context.Context, opts auth.FederationOptions) (*auth.FederationClient, error)

// SSOHandler serves the federated login endpoints.
type SSOHandler struct {
	*IdentityHandler

	federation  FederationSource
	newClient   ClientFactory
	redirectURL string

	// The last discovered client, reused until the settings change.
	mu       sync.Mutex
	cached   *auth.FederationClient
	cachedBy auth.FederationOptions
}

func NewSSOHandler(identity *IdentityHandler, federation FederationSource, newClient ClientFactory, redirectURL string) *SSOHandler {
	return &SSOHandler{
		IdentityHandler: identity,
		federation:      federation,
		newClient:       newClient,
		redirectURL:     redirectURL,
	}
}

// SSOConfigResponse tells the frontend whether and where to send users
// for single sign-on.
type SSOConfigResponse struct {
	Enabled          bool   `json:"enabled"`
	ServerURL        string `json:"serverUrl,omitempty"`
	Realm            string `json:"realm,omitempty"`
	ClientID         string `json:"clientId,omitempty"`
	AuthorizationURL string `json:"authorizationUrl,omitempty"`
	TokenURL         string `json:"tokenUrl,omitempty"`
	LogoutURL        string `json:"logoutUrl,omitempty"`
	UserInfoURL      string `json:"userInfoUrl,omitempty"`
}

// HandleConfig returns the public SSO settings.
//
// HTTP: GET /api/auth/sso/config
func (h *SSOHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.federation.Resolve(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	ep := service.Endpoints(cfg)
	if ep.Issuer == "" {
		writeJSON(w, http.StatusOK, SSOConfigResponse{Enabled: false})
		return
	}

	writeJSON(w, http.StatusOK, SSOConfigResponse{
		Enabled:          true,
		ServerURL:        cfg.ServerURL,
		Realm:            cfg.Realm,
		ClientID:         cfg.ClientID,
		AuthorizationURL: ep.Authorization,
		TokenURL:         ep.Token,
		LogoutURL:        ep.Logout,
		UserInfoURL:      ep.UserInfo,
	})
}

// HandleSession logs in with an ID token the browser obtained from the
// provider directly.
//
// HTTP: POST /api/auth/sso/session
// Header: Authorization: Bearer <id_token>
func (h *SSOHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		writeMessage(w, http.StatusUnauthorized, "Missing identity token")
		return
	}
	rawToken := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

	client, err := h.client(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	identity, err := client.VerifyIDToken(r.Context(), rawToken)
	if err != nil {
		h.logger.Warn("sso session: token rejected", slog.String("error", err.Error()))
		writeMessage(w, http.StatusUnauthorized, "Invalid identity token")
		return
	}

	user, err := h.identity.FederatedLogin(r.Context(), *identity)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.completeLogin(w, user, auth.MethodSSO)
}

// HandleAuthorize starts the server-side authorization code flow.
//
// HTTP: GET /api/auth/sso/authorize
func (h *SSOHandler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	client, err := h.client(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	state := xid.New().String()
	verifier := auth.NewPKCEVerifier()

	target, err := client.AuthCodeURL(state, verifier)
	if err != nil {
		writeError(w, h.logger, apperror.Dependency("build authorization url", err))
		return
	}

	h.cookies.setFlow(w, stateCookie, state)
	h.cookies.setFlow(w, pkceCookie, verifier)
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleCallback completes the authorization code flow.
//
// HTTP: GET /api/auth/sso/callback?code=...&state=...
func (h *SSOHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	state, err := r.Cookie(stateCookie)
	if err != nil || state.Value == "" || q.Get("state") != state.Value {
		h.logger.Warn("sso callback: state mismatch")
		writeMessage(w, http.StatusBadRequest, "Invalid SSO state")
		return
	}
	verifier, err := r.Cookie(pkceCookie)
	if err != nil || verifier.Value == "" {
		writeMessage(w, http.StatusBadRequest, "Invalid SSO state")
		return
	}

	// Both flow cookies are single-use.
	h.cookies.clear(w, stateCookie, ssoCookiePath)
	h.cookies.clear(w, pkceCookie, ssoCookiePath)

	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("sso callback: provider returned error", slog.String("error", errParam))
		http.Redirect(w, r, "/?sso=denied", http.StatusSeeOther)
		return
	}

	code := q.Get("code")
	if code == "" {
		writeMessage(w, http.StatusBadRequest, "Missing authorization code")
		return
	}

	client, err := h.client(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	identity, err := client.Exchange(r.Context(), code, verifier.Value)
	if err != nil {
		h.logger.Error("sso callback: exchange failed", slog.String("error", err.Error()))
		writeMessage(w, http.StatusUnauthorized, "Authentication failed")
		return
	}

	user, err := h.identity.FederatedLogin(r.Context(), *identity)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.startSession(w, user, auth.MethodSSO); err != nil {
		writeError(w, h.logger, err)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// client returns a federation client for the settings currently in
// effect. Discovery runs again only when issuer, client or redirect
// settings differ from the cached client's.
func (h *SSOHandler) client(ctx context.Context) (*auth.FederationClient, error) {
	cfg, err := h.federation.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	ep := service.Endpoints(cfg)
	if ep.Issuer == "" {
		return nil, apperror.Forbidden("Single sign-on is disabled")
	}

	opts := auth.FederationOptions{
		IssuerURL:    ep.Issuer,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  h.redirectURL,
	}

	h.mu.Lock()
	if h.cached != nil && h.cachedBy == opts {
		client := h.cached
		h.mu.Unlock()
		return client, nil
	}
	h.mu.Unlock()

	client, err := h.newClient(ctx, opts)
	if err != nil {
		return nil, apperror.Dependency("connect identity provider", err)
	}

	h.mu.Lock()
	h.cached, h.cachedBy = client, opts
	h.mu.Unlock()
	return client, nil
}
