// Package sqlite implements the repository interfaces on an embedded
// SQLite database (modernc.org/sqlite, pure Go, no CGo).
//
// This is the default store: a single file next to the binary, suitable
// for a single-instance deployment. Multi-instance deployments use the
// postgres package instead.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/sakif/identity-portal/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/identity.db"  → file-based database (persistent)
//   - ":memory:"          → in-memory database, used by tests
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every new connection to ":memory:" is a separate, empty database.
	// Pin the pool to one connection so all queries see the same data.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		// Wait for a competing writer instead of failing with SQLITE_BUSY.
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates or upgrades the schema. Every statement is idempotent,
// so it runs on each startup.
func (db *DB) migrate() error {
	// email is stored normalised (trimmed, lower-case) by the service
	// layer, so a plain UNIQUE index is enough. NULL federated_id and
	// verification_token values never collide in a UNIQUE index.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                 TEXT PRIMARY KEY,
			email              TEXT NOT NULL,
			first_name         TEXT NOT NULL DEFAULT '',
			last_name          TEXT NOT NULL DEFAULT '',
			password_hash      TEXT,
			verified           INTEGER NOT NULL DEFAULT 0,
			verification_token TEXT,
			token_created_at   DATETIME,
			federated_id       TEXT,
			auth_provider      TEXT NOT NULL DEFAULT 'LOCAL',
			created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_federated_id ON users(federated_id);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_verification_token ON users(verification_token);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// Singleton settings rows: the CHECK pins the primary key to 1.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS federation_configs (
			id            INTEGER PRIMARY KEY CHECK (id = 1),
			enabled       INTEGER NOT NULL DEFAULT 1,
			server_url    TEXT NOT NULL DEFAULT '',
			realm         TEXT NOT NULL DEFAULT '',
			client_id     TEXT NOT NULL DEFAULT '',
			client_secret TEXT NOT NULL DEFAULT '',
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS mail_configs (
			id         INTEGER PRIMARY KEY CHECK (id = 1),
			host       TEXT NOT NULL DEFAULT '',
			port       INTEGER NOT NULL DEFAULT 0,
			username   TEXT NOT NULL DEFAULT '',
			password   TEXT NOT NULL DEFAULT '',
			protocol   TEXT NOT NULL DEFAULT 'smtp',
			auth       INTEGER NOT NULL DEFAULT 0,
			starttls   INTEGER NOT NULL DEFAULT 0,
			from_email TEXT NOT NULL DEFAULT '',
			from_name  TEXT NOT NULL DEFAULT '',
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating settings tables: %w", err)
	}

	// Databases created before federation support lack these columns.
	if err := db.addColumnIfNotExists("users", "auth_provider",
		"TEXT NOT NULL DEFAULT 'LOCAL'"); err != nil {
		return fmt.Errorf("adding auth_provider to users: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// isUniqueViolation reports whether err came from a UNIQUE index.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// nullString maps "" to SQL NULL so optional columns stay out of the
// unique indexes.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
