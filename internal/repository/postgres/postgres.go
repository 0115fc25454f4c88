// Package postgres implements the repository interfaces on PostgreSQL
// through lib/pq. It is the store for multi-instance deployments; the
// schema is managed by golang-migrate (see Migrate).
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/sakif/identity-portal/internal/repository"
)

const (
	driverName          = "postgres"
	defaultPingTimeout  = 5 * time.Second
	defaultConnMaxIdle  = 2 * time.Minute
	defaultConnMaxLife  = 30 * time.Minute
	defaultMaxIdleConns = 5
	defaultMaxOpenConns = 25

	// uniqueViolation is the SQLSTATE for a unique index clash.
	uniqueViolation = "23505"
)

var _ repository.Store = (*DB)(nil)

type DB struct {
	conn *sql.DB
}

// Open connects to the database at dsn and verifies the connection.
// It does not run migrations; call Migrate first.
func Open(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: opening database: %w", err)
	}

	conn.SetConnMaxIdleTime(defaultConnMaxIdle)
	conn.SetConnMaxLifetime(defaultConnMaxLife)
	conn.SetMaxIdleConns(defaultMaxIdleConns)
	conn.SetMaxOpenConns(defaultMaxOpenConns)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	return &DB{conn: conn}, nil
}

// NewFromConn wraps an existing pool. Tests pass a sqlmock connection.
func NewFromConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
