package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sakif/identity-portal/internal/apperror"

	"github.com/sakif/identity-portal/internal/auth"
	"github.com/sakif/identity-portal/internal/repository"
)

// MigrationReport summarizes one credential migration pass.
type MigrationReport struct {
	Scanned  int
	Upgraded int
	Skipped  int // changed by someone else mid-pass
	Failed   int
}

// CredentialMigrator rehashes credentials that were stored as plaintext
// by older releases. Digests are recognised by their bcrypt prefix, so a
// second pass changes nothing.
type CredentialMigrator struct {
	users  repository.UserRepository
	hasher *auth.PasswordHasher
	logger *slog.Logger
}

func NewCredentialMigrator(users repository.UserRepository, hasher *auth.PasswordHasher, logger *slog.Logger) *CredentialMigrator {
	return &CredentialMigrator{users: users, hasher: hasher, logger: logger}
}

// Run scans every user once. Only the initial FindAll can fail the pass;
// per-record failures are logged, counted, and skipped.
func (m *CredentialMigrator) Run(ctx context.Context) (MigrationReport, error) {
	var report MigrationReport

	users, err := m.users.FindAll(ctx)
	if err != nil {
		return report, err
	}

	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		if user.PasswordHash == "" || auth.IsHashed(user.PasswordHash) {
			continue
		}

		hash, err := m.hasher.Hash(user.PasswordHash)
		if err != nil {
			report.Failed++
			m.logger.Error("password migration failed",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		// Only the hash column is written, and only if nobody changed it
		// since FindAll; a password reset mid-pass wins.
		if err := m.users.UpdatePasswordHash(ctx, user.ID, user.PasswordHash, hash); err != nil {
			if errors.Is(err, apperror.ErrConflict) {
				report.Skipped++
				m.logger.Warn("password changed during migration, skipping",
					slog.String("user_id", user.ID),
				)
				continue
			}
			report.Failed++
			m.logger.Error("password migration failed",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		report.Upgraded++
		m.logger.Info("password migrated", slog.String("email", user.Email))
	}

	m.logger.Info("Password migration completed",
		slog.Int("scanned", report.Scanned),
		slog.Int("upgraded", report.Upgraded),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}
