package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/identity-portal/internal/apperror"
	"github.com/sakif/identity-portal/internal/model"
)

func (db *DB) GetFederationConfig(ctx context.Context) (*model.FederationConfig, error) {
	const query = `
		SELECT enabled, server_url, realm, client_id, client_secret, updated_at
		FROM federation_configs
		WHERE id = 1`
	var cfg model.FederationConfig
	err := db.conn.QueryRowContext(ctx, query).Scan(
		&cfg.Enabled, &cfg.ServerURL, &cfg.Realm, &cfg.ClientID, &cfg.ClientSecret, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("federation config not found")
		}
		return nil, fmt.Errorf("postgres: getting federation config: %w", err)
	}
	return &cfg, nil
}

func (db *DB) SaveFederationConfig(ctx context.Context, cfg *model.FederationConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	const query = `
		INSERT INTO federation_configs (id, enabled, server_url, realm, client_id, client_secret, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			enabled       = EXCLUDED.enabled,
			server_url    = EXCLUDED.server_url,
			realm         = EXCLUDED.realm,
			client_id     = EXCLUDED.client_id,
			client_secret = EXCLUDED.client_secret,
			updated_at    = EXCLUDED.updated_at`
	if _, err := db.conn.ExecContext(ctx, query,
		cfg.Enabled, cfg.ServerURL, cfg.Realm, cfg.ClientID, cfg.ClientSecret, cfg.UpdatedAt,
	); err != nil {
		return fmt.Errorf("postgres: saving federation config: %w", err)
	}
	return nil
}

func (db *DB) GetMailConfig(ctx context.Context) (*model.MailConfig, error) {
	const query = `
		SELECT host, port, username, password, protocol, auth, starttls, from_email, from_name, updated_at
		FROM mail_configs
		WHERE id = 1`
	var cfg model.MailConfig
	err := db.conn.QueryRowContext(ctx, query).Scan(
		&cfg.Host, &cfg.Port, &cfg.Username, &cfg.Password, &cfg.Protocol,
		&cfg.Auth, &cfg.StartTLS, &cfg.FromEmail, &cfg.FromName, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("mail config not found")
		}
		return nil, fmt.Errorf("postgres: getting mail config: %w", err)
	}
	return &cfg, nil
}

func (db *DB) SaveMailConfig(ctx context.Context, cfg *model.MailConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	const query = `
		INSERT INTO mail_configs (id, host, port, username, password, protocol, auth, starttls, from_email, from_name, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			host       = EXCLUDED.host,
			port       = EXCLUDED.port,
			username   = EXCLUDED.username,
			password   = EXCLUDED.password,
			protocol   = EXCLUDED.protocol,
			auth       = EXCLUDED.auth,
			starttls   = EXCLUDED.starttls,
			from_email = EXCLUDED.from_email,
			from_name  = EXCLUDED.from_name,
			updated_at = EXCLUDED.updated_at`
	if _, err := db.conn.ExecContext(ctx, query,
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Protocol,
		cfg.Auth, cfg.StartTLS, cfg.FromEmail, cfg.FromName, cfg.UpdatedAt,
	); err != nil {
		return fmt.Errorf("postgres: saving mail config: %w", err)
	}
	return nil
}
