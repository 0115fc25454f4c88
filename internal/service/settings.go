package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/sakif/identity-portal/internal/apperror"
	"github.com/sakif/identity-portal/internal/model"
	"github.com/sakif/identity-portal/internal/repository"
	"github.com/sakif/identity-portal/internal/vault"
)

// MailSettings manages the outbound SMTP settings. Like federation
// settings, a stored record replaces the environment defaults whole.
type MailSettings struct {
	settings repository.SettingsRepository
	defaults model.MailConfig
	sealer   *vault.Sealer
	logger   *slog.Logger
}

func NewMailSettings(
	settings repository.SettingsRepository,
	defaults model.MailConfig,
	sealer *vault.Sealer,
	logger *slog.Logger,
) *MailSettings {
	return &MailSettings{settings: settings, defaults: defaults, sealer: sealer, logger: logger}
}

// Stored returns the persisted override, or a NotFound error when none
// has been saved.
func (m *MailSettings) Stored(ctx context.Context) (model.MailConfig, error) {
	sctx, cancel := context.WithTimeout(ctx, DefaultStoreTimeout)
	defer cancel()

	stored, err := m.settings.GetMailConfig(sctx)
	if errors.Is(err, apperror.ErrNotFound) {
		return model.MailConfig{}, apperror.NotFound("mail settings not configured")
	}
	if err != nil {
		return model.MailConfig{}, apperror.Dependency("load mail config", err)
	}

	cfg := *stored
	password, err := m.sealer.Open(cfg.Password)
	if err != nil {
		return model.MailConfig{}, apperror.Dependency("decrypt mail password", err)
	}
	cfg.Password = password
	return cfg, nil
}

// ResolveMail returns the settings in effect for the next send.
func (m *MailSettings) ResolveMail(ctx context.Context) (model.MailConfig, error) {
	cfg, err := m.Stored(ctx)
	if errors.Is(err, apperror.ErrNotFound) {
		return m.defaults, nil
	}
	return cfg, err
}

// Save stores cfg. An empty or masked password keeps the current one.
func (m *MailSettings) Save(ctx context.Context, cfg model.MailConfig) (model.MailConfig, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.FromEmail = normalizeEmail(cfg.FromEmail)
	cfg.FromName = strings.TrimSpace(cfg.FromName)

	if cfg.Host == "" {
		return model.MailConfig{}, apperror.ValidationFailed("host", "SMTP host is required")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return model.MailConfig{}, apperror.ValidationFailed("port", "SMTP port is out of range")
	}
	if cfg.FromEmail != "" && !validEmail(cfg.FromEmail) {
		return model.MailConfig{}, apperror.ValidationFailed("fromEmail", msgEmailInvalid)
	}

	if cfg.Password == "" || strings.HasPrefix(cfg.Password, maskPrefix) {
		current, err := m.ResolveMail(ctx)
		if err != nil {
			return model.MailConfig{}, err
		}
		cfg.Password = current.Password
	}

	toStore := cfg
	sealed, err := m.sealer.Seal(cfg.Password)
	if err != nil {
		return model.MailConfig{}, apperror.Dependency("encrypt mail password", err)
	}
	toStore.Password = sealed

	sctx, cancel := context.WithTimeout(ctx, DefaultStoreTimeout)
	defer cancel()
	if err := m.settings.SaveMailConfig(sctx, &toStore); err != nil {
		return model.MailConfig{}, apperror.Dependency("save mail config", err)
	}
	cfg.UpdatedAt = toStore.UpdatedAt

	m.logger.Info("mail config updated",
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
	)
	return cfg, nil
}

// MaskedMail returns a copy of cfg with the password hidden.
func MaskedMail(cfg model.MailConfig) model.MailConfig {
	cfg.Password = MaskSecret(cfg.Password)
	return cfg
}
