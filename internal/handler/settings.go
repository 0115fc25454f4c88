package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/identity-portal/internal/apperror"
	"github.com/sakif/identity-portal/internal/model"
	"github.com/sakif/identity-portal/internal/service"
)

// FederationSettings is the read/write side of the SSO settings.
// *service.FederationResolver implements it.
type FederationSettings interface {
	FederationSource
	Save(ctx context.Context, cfg model.FederationConfig) (model.FederationConfig, error)
	TestConnection(ctx context.Context, cfg model.FederationConfig) service.ConnectionResult
}

// MailSettings is the read/write side of the SMTP settings.
// *service.MailSettings implements it.
type MailSettings interface {
	Stored(ctx context.Context) (model.MailConfig, error)
	Save(ctx context.Context, cfg model.MailConfig) (model.MailConfig, error)
}

// SettingsHandler serves the admin settings pages. Secrets never leave
// the server unmasked.
type SettingsHandler struct {
	federation FederationSettings
	mail       MailSettings
	logger     *slog.Logger
}

func NewSettingsHandler(federation FederationSettings, mail MailSettings, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{federation: federation, mail: mail, logger: logger}
}

// FederationSettingsResponse is the masked SSO config plus a hint for the
// settings form.
type FederationSettingsResponse struct {
	model.FederationConfig
	ClientSecretMasked bool `json:"clientSecretMasked"`
}

type federationSavedResponse struct {
	Status  string                     `json:"status"`
	Message string                     `json:"message"`
	Config  FederationSettingsResponse `json:"config"`
}

type connectionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Issuer  string `json:"issuer,omitempty"`
}

// HandleGetFederation serves GET /api/settings/keycloak.
func (h *SettingsHandler) HandleGetFederation(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.federation.Resolve(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, maskedFederation(cfg))
}

// HandleSaveFederation serves POST /api/settings/keycloak.
func (h *SettingsHandler) HandleSaveFederation(w http.ResponseWriter, r *http.Request) {
	var req model.FederationConfig
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	saved, err := h.federation.Save(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, federationSavedResponse{
		Status:  statusSuccess,
		Message: "Keycloak configuration updated successfully",
		Config:  maskedFederation(saved),
	})
}

// HandleTestFederation serves POST /api/settings/keycloak/test.
func (h *SettingsHandler) HandleTestFederation(w http.ResponseWriter, r *http.Request) {
	var req model.FederationConfig
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	result := h.federation.TestConnection(r.Context(), req)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, connectionResponse{
		Success: result.Success,
		Message: result.Message,
		Issuer:  result.Issuer,
	})
}

// HandleGetMail serves GET /api/settings/mail.
func (h *SettingsHandler) HandleGetMail(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.mail.Stored(r.Context())
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Mail settings not configured")
			return
		}
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, service.MaskedMail(cfg))
}

// HandleSaveMail serves POST /api/settings/mail.
func (h *SettingsHandler) HandleSaveMail(w http.ResponseWriter, r *http.Request) {
	var req model.MailConfig
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	saved, err := h.mail.Save(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, service.MaskedMail(saved))
}

func maskedFederation(cfg model.FederationConfig) FederationSettingsResponse {
	return FederationSettingsResponse{
		FederationConfig:   service.Masked(cfg),
		ClientSecretMasked: cfg.ClientSecret != "",
	}
}
