package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/sakif/identity-portal/internal/apperror"
	"github.com/sakif/identity-portal/internal/auth"
	"github.com/sakif/identity-portal/internal/model"
	"github.com/sakif/identity-portal/internal/repository"
	"github.com/sakif/identity-portal/internal/vault"
)

const (
	maskPrefix      = "****"
	testConnTimeout = 10 * time.Second
)

// FederationEndpoints are the provider URLs derived from a config. All
// fields are empty when federation is disabled or incomplete.
type FederationEndpoints struct {
	Issuer        string `json:"issuerUrl,omitempty"`
	Authorization string `json:"authorizationUrl,omitempty"`
	Token         string `json:"tokenUrl,omitempty"`
	Logout        string `json:"logoutUrl,omitempty"`
	UserInfo      string `json:"userInfoUrl,omitempty"`
	JWKS          string `json:"jwksUrl,omitempty"`
}

// ConnectionResult reports a connectivity test against the provider.
type ConnectionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Issuer  string `json:"issuer,omitempty"`
}

// discoverFunc fetches the discovery document at issuerURL and returns
// the advertised issuer.
type discoverFunc func(ctx context.Context, issuerURL string) (string, error)

// FederationResolver decides which SSO settings are in effect: the stored
// override if one exists, else the configured defaults. It returns a
// fresh value on every call and holds no cached state.
type FederationResolver struct {
	settings repository.SettingsRepository
	defaults model.FederationConfig
	sealer   *vault.Sealer
	logger   *slog.Logger
	timeout  time.Duration
	discover discoverFunc
}

// NewFederationResolver builds a resolver. sealer may be nil, in which
// case the client secret is stored as given.
func NewFederationResolver(
	settings repository.SettingsRepository,
	defaults model.FederationConfig,
	sealer *vault.Sealer,
	logger *slog.Logger,
) *FederationResolver {
	return &FederationResolver{
		settings: settings,
		defaults: defaults,
		sealer:   sealer,
		logger:   logger,
		timeout:  DefaultStoreTimeout,
		discover: auth.Discover,
	}
}

// Resolve returns the effective configuration with the client secret in
// plaintext. The override replaces the defaults as a whole.
func (r *FederationResolver) Resolve(ctx context.Context) (model.FederationConfig, error) {
	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	stored, err := r.settings.GetFederationConfig(sctx)
	if errors.Is(err, apperror.ErrNotFound) {
		return r.defaults, nil
	}
	if err != nil {
		return model.FederationConfig{}, apperror.Dependency("load federation config", err)
	}

	cfg := *stored
	secret, err := r.sealer.Open(cfg.ClientSecret)
	if err != nil {
		return model.FederationConfig{}, apperror.Dependency("decrypt client secret", err)
	}
	cfg.ClientSecret = secret
	return cfg, nil
}

// Save validates and stores cfg as the override. A client secret that is
// empty or still in masked form keeps the current secret, so a settings
// form can be round-tripped without re-entering it.
func (r *FederationResolver) Save(ctx context.Context, cfg model.FederationConfig) (model.FederationConfig, error) {
	cfg.ServerURL = strings.TrimRight(strings.TrimSpace(cfg.ServerURL), "/")
	cfg.Realm = strings.TrimSpace(cfg.Realm)
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)

	if err := validateFederation(cfg); err != nil {
		return model.FederationConfig{}, err
	}

	if cfg.ClientSecret == "" || strings.HasPrefix(cfg.ClientSecret, maskPrefix) {
		current, err := r.Resolve(ctx)
		if err != nil {
			return model.FederationConfig{}, err
		}
		cfg.ClientSecret = current.ClientSecret
	}

	toStore := cfg
	sealed, err := r.sealer.Seal(cfg.ClientSecret)
	if err != nil {
		return model.FederationConfig{}, apperror.Dependency("encrypt client secret", err)
	}
	toStore.ClientSecret = sealed

	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.settings.SaveFederationConfig(sctx, &toStore); err != nil {
		return model.FederationConfig{}, apperror.Dependency("save federation config", err)
	}
	cfg.UpdatedAt = toStore.UpdatedAt

	r.logger.Info("federation config updated",
		slog.Bool("enabled", cfg.Enabled),
		slog.String("server_url", cfg.ServerURL),
		slog.String("realm", cfg.Realm),
	)
	return cfg, nil
}

// TestConnection fetches the realm's discovery document.
func (r *FederationResolver) TestConnection(ctx context.Context, cfg model.FederationConfig) ConnectionResult {
	serverURL := strings.TrimRight(strings.TrimSpace(cfg.ServerURL), "/")
	realm := strings.TrimSpace(cfg.Realm)
	if serverURL == "" || realm == "" {
		return ConnectionResult{Message: "Server URL and realm are required"}
	}

	ctx, cancel := context.WithTimeout(ctx, testConnTimeout)
	defer cancel()

	issuer, err := r.discover(ctx, serverURL+"/realms/"+realm)
	if err != nil {
		return ConnectionResult{Message: "Failed to connect: " + err.Error()}
	}
	if issuer == "" {
		return ConnectionResult{Message: "Invalid response from Keycloak server"}
	}
	return ConnectionResult{
		Success: true,
		Message: "Successfully connected to Keycloak server",
		Issuer:  issuer,
	}
}

// Endpoints derives the provider URLs for cfg.
func Endpoints(cfg model.FederationConfig) FederationEndpoints {
	serverURL := strings.TrimRight(strings.TrimSpace(cfg.ServerURL), "/")
	realm := strings.TrimSpace(cfg.Realm)
	if !cfg.Enabled || serverURL == "" || realm == "" {
		return FederationEndpoints{}
	}

	issuer := serverURL + "/realms/" + realm
	oidcBase := issuer + "/protocol/openid-connect/"
	return FederationEndpoints{
		Issuer:        issuer,
		Authorization: oidcBase + "auth",
		Token:         oidcBase + "token",
		Logout:        oidcBase + "logout",
		UserInfo:      oidcBase + "userinfo",
		JWKS:          oidcBase + "certs",
	}
}

// MaskSecret hides all but the last four characters of a secret. It is
// for display only.
func MaskSecret(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) <= 4:
		return maskPrefix
	default:
		return maskPrefix + secret[len(secret)-4:]
	}
}

// Masked returns a copy of cfg safe to send to a browser.
func Masked(cfg model.FederationConfig) model.FederationConfig {
	cfg.ClientSecret = MaskSecret(cfg.ClientSecret)
	return cfg
}

func validateFederation(cfg model.FederationConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.ServerURL == "" {
		return apperror.ValidationFailed("serverUrl", "Server URL is required when SSO is enabled")
	}
	u, err := url.Parse(cfg.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperror.ValidationFailed("serverUrl", fmt.Sprintf("Server URL %q is not a valid http(s) URL", cfg.ServerURL))
	}
	if cfg.Realm == "" {
		return apperror.ValidationFailed("realm", "Realm is required when SSO is enabled")
	}
	if cfg.ClientID == "" {
		return apperror.ValidationFailed("clientId", "Client ID is required when SSO is enabled")
	}
	return nil
}
