package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/identity-portal/internal/apperror"
	"github.com/sakif/identity-portal/internal/model"
)

const selectUser = `
	SELECT id, email, first_name, last_name, password_hash, verified,
	       verification_token, token_created_at, federated_id, auth_provider,
	       created_at, updated_at
	FROM users`

func (db *DB) Save(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = xid.New().String()
		user.CreatedAt = now
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	if user.AuthProvider == "" {
		user.AuthProvider = model.ProviderLocal
	}

	var tokenCreatedAt sql.NullTime
	if user.TokenCreatedAt != nil {
		tokenCreatedAt = sql.NullTime{Time: user.TokenCreatedAt.UTC(), Valid: true}
	}

	const query = `
		INSERT INTO users (id, email, first_name, last_name, password_hash, verified,
		                   verification_token, token_created_at, federated_id, auth_provider,
		                   created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			email              = EXCLUDED.email,
			first_name         = EXCLUDED.first_name,
			last_name          = EXCLUDED.last_name,
			password_hash      = EXCLUDED.password_hash,
			verified           = EXCLUDED.verified,
			verification_token = EXCLUDED.verification_token,
			token_created_at   = EXCLUDED.token_created_at,
			federated_id       = EXCLUDED.federated_id,
			auth_provider      = EXCLUDED.auth_provider,
			updated_at         = EXCLUDED.updated_at`

	_, err := db.conn.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.FirstName,
		user.LastName,
		nullString(user.PasswordHash),
		user.Verified,
		nullString(user.VerificationToken),
		tokenCreatedAt,
		nullString(user.FederatedID),
		string(user.AuthProvider),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("Email already registered")
		}
		return fmt.Errorf("postgres: saving user %s: %w", user.ID, err)
	}
	return nil
}

// UpdatePasswordHash is a compare-and-swap on password_hash.
func (db *DB) UpdatePasswordHash(ctx context.Context, id, current, hash string) error {
	const query = `
		UPDATE users SET password_hash = $1, updated_at = $2
		WHERE id = $3 AND password_hash = $4`

	res, err := db.conn.ExecContext(ctx, query, hash, time.Now().UTC(), id, current)
	if err != nil {
		return fmt.Errorf("postgres: updating password for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: updating password for %s: %w", id, err)
	}
	if n == 0 {
		return apperror.Conflict("user changed since it was read")
	}
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.queryOne(ctx, "id", selectUser+` WHERE id = $1`, id)
}

func (db *DB) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.queryOne(ctx, "email", selectUser+` WHERE LOWER(email) = LOWER($1)`, email)
}

func (db *DB) FindByVerificationToken(ctx context.Context, token string) (*model.User, error) {
	return db.queryOne(ctx, "verification_token", selectUser+` WHERE verification_token = $1`, token)
}

func (db *DB) FindByFederatedID(ctx context.Context, federatedID string) (*model.User, error) {
	return db.queryOne(ctx, "federated_id", selectUser+` WHERE federated_id = $1`, federatedID)
}

func (db *DB) FindAll(ctx context.Context) ([]*model.User, error) {
	rows, err := db.conn.QueryContext(ctx, selectUser+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating users: %w", err)
	}
	return users, nil
}

func (db *DB) queryOne(ctx context.Context, column, query, value string) (*model.User, error) {
	if value == "" {
		return nil, apperror.NotFound(fmt.Sprintf("user not found by %s", column))
	}

	u, err := scanUser(db.conn.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(fmt.Sprintf("user not found by %s", column))
		}
		return nil, fmt.Errorf("postgres: getting user by %s: %w", column, err)
	}
	return u, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*model.User, error) {
	var (
		u              model.User
		passwordHash   sql.NullString
		token          sql.NullString
		tokenCreatedAt sql.NullTime
		federatedID    sql.NullString
		provider       string
	)
	if err := s.Scan(
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &passwordHash, &u.Verified,
		&token, &tokenCreatedAt, &federatedID, &provider, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}

	u.PasswordHash = passwordHash.String
	u.VerificationToken = token.String
	u.FederatedID = federatedID.String
	u.AuthProvider = model.AuthProvider(provider)
	if tokenCreatedAt.Valid {
		t := tokenCreatedAt.Time
		u.TokenCreatedAt = &t
	}
	return &u, nil
}
