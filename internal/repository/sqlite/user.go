package sqlite

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

const userColumns = `id, email, first_name, last_name, password_hash, verified,
	verification_token, token_created_at, federated_id, auth_provider,
	created_at, updated_at`

// Save inserts or updates a user keyed by its internal ID.
//
// New users (empty ID) get an xid and fresh timestamps. Existing users
// are written with INSERT ... ON CONFLICT(id) DO UPDATE so a single
// statement covers both cases; created_at is never overwritten.
//
// A clash on the email or federated_id unique index is reported as
// apperror.ErrConflict.
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

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email              = excluded.email,
			first_name         = excluded.first_name,
			last_name          = excluded.last_name,
			password_hash      = excluded.password_hash,
			verified           = excluded.verified,
			verification_token = excluded.verification_token,
			token_created_at   = excluded.token_created_at,
			federated_id       = excluded.federated_id,
			auth_provider      = excluded.auth_provider,
			updated_at         = excluded.updated_at`,
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
		return fmt.Errorf("sqlite: saving user %s: %w", user.ID, err)
	}

	return nil
}

// UpdatePasswordHash replaces password_hash only if it still holds
// current, so a concurrent password change is never overwritten.
func (db *DB) UpdatePasswordHash(ctx context.Context, id, current, hash string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ? AND password_hash = ?`,
		hash, time.Now().UTC(), id, current)
	if err != nil {
		return fmt.Errorf("sqlite: updating password for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: updating password for %s: %w", id, err)
	}
	if n == 0 {
		return apperror.Conflict("user changed since it was read")
	}
	return nil
}

// GetUserByID retrieves a user by their internal ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.findOne(ctx, "id", id)
}

func (db *DB) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.findOne(ctx, "email", email)
}

func (db *DB) FindByVerificationToken(ctx context.Context, token string) (*model.User, error) {
	return db.findOne(ctx, "verification_token", token)
}

func (db *DB) FindByFederatedID(ctx context.Context, federatedID string) (*model.User, error) {
	return db.findOne(ctx, "federated_id", federatedID)
}

// FindAll returns every user ordered by creation time.
func (db *DB) FindAll(ctx context.Context) ([]*model.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}

	return users, nil
}

// findOne looks a user up by a single indexed column. column is always a
// constant from this file, never caller input.
func (db *DB) findOne(ctx context.Context, column, value string) (*model.User, error) {
	if value == "" {
		return nil, apperror.NotFound(fmt.Sprintf("user not found by %s", column))
	}

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(fmt.Sprintf("user not found by %s", column))
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", column, err)
	}
	return u, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
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

	err := s.Scan(
		&u.ID,
		&u.Email,
		&u.FirstName,
		&u.LastName,
		&passwordHash,
		&u.Verified,
		&token,
		&tokenCreatedAt,
		&federatedID,
		&provider,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
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
