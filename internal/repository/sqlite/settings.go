package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/identity-portal/internal/apperror"
	"github.com/sakif/identity-portal/internal/model"
)

// GetFederationConfig returns the stored SSO override, or
// apperror.ErrNotFound when none has been saved.
func (db *DB) GetFederationConfig(ctx context.Context) (*model.FederationConfig, error) {
	var cfg model.FederationConfig
	err := db.conn.QueryRowContext(ctx,
		`SELECT enabled, server_url, realm, client_id, client_secret, updated_at
		 FROM federation_configs WHERE id = 1`,
	).Scan(&cfg.Enabled, &cfg.ServerURL, &cfg.Realm, &cfg.ClientID, &cfg.ClientSecret, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("federation config not found")
		}
		return nil, fmt.Errorf("sqlite: getting federation config: %w", err)
	}
	return &cfg, nil
}

// SaveFederationConfig replaces the stored SSO override.
func (db *DB) SaveFederationConfig(ctx context.Context, cfg *model.FederationConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO federation_configs (id, enabled, server_url, realm, client_id, client_secret, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			enabled       = excluded.enabled,
			server_url    = excluded.server_url,
			realm         = excluded.realm,
			client_id     = excluded.client_id,
			client_secret = excluded.client_secret,
			updated_at    = excluded.updated_at`,
		cfg.Enabled, cfg.ServerURL, cfg.Realm, cfg.ClientID, cfg.ClientSecret, cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving federation config: %w", err)
	}
	return nil
}

// GetMailConfig returns the stored SMTP override, or apperror.ErrNotFound.
func (db *DB) GetMailConfig(ctx context.Context) (*model.MailConfig, error) {
	var cfg model.MailConfig
	err := db.conn.QueryRowContext(ctx,
		`SELECT host, port, username, password, protocol, auth, starttls, from_email, from_name, updated_at
		 FROM mail_configs WHERE id = 1`,
	).Scan(
		&cfg.Host, &cfg.Port, &cfg.Username, &cfg.Password, &cfg.Protocol,
		&cfg.Auth, &cfg.StartTLS, &cfg.FromEmail, &cfg.FromName, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("mail config not found")
		}
		return nil, fmt.Errorf("sqlite: getting mail config: %w", err)
	}
	return &cfg, nil
}

// SaveMailConfig replaces the stored SMTP override.
func (db *DB) SaveMailConfig(ctx context.Context, cfg *model.MailConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO mail_configs (id, host, port, username, password, protocol, auth, starttls, from_email, from_name, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			host       = excluded.host,
			port       = excluded.port,
			username   = excluded.username,
			password   = excluded.password,
			protocol   = excluded.protocol,
			auth       = excluded.auth,
			starttls   = excluded.starttls,
			from_email = excluded.from_email,
			from_name  = excluded.from_name,
			updated_at = excluded.updated_at`,
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Protocol,
		cfg.Auth, cfg.StartTLS, cfg.FromEmail, cfg.FromName, cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving mail config: %w", err)
	}
	return nil
}
