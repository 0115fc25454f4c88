// Package repository declares the storage contracts the service layer
// depends on. Implementations live in the sqlite and postgres
// subpackages.
//
// Lookups that find nothing return apperror.ErrNotFound. A write that
// violates a uniqueness rule (email, federated id) returns
// apperror.ErrConflict. Any other failure is returned wrapped as-is and
// the service layer classifies it as a dependency failure.
package repository

import (
	"context"

	"github.com/sakif/identity-portal/internal/model"
)

type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByVerificationToken(ctx context.Context, token string) (*model.User, error)
	FindByFederatedID(ctx context.Context, federatedID string) (*model.User, error)

	// Save inserts the user when ID is empty (assigning ID and timestamps)
	// and updates the existing row otherwise.
	Save(ctx context.Context, user *model.User) error

	// UpdatePasswordHash swaps the stored hash only while it still equals
	// current. A row that changed underneath returns apperror.ErrConflict.
	UpdatePasswordHash(ctx context.Context, id, current, hash string) error

	// FindAll is used by the credential migration pass only.
	FindAll(ctx context.Context) ([]*model.User, error)
}

// SettingsRepository stores the singleton configuration overrides.
// Get methods return apperror.ErrNotFound when no override is stored.
type SettingsRepository interface {
	GetFederationConfig(ctx context.Context) (*model.FederationConfig, error)
	SaveFederationConfig(ctx context.Context, cfg *model.FederationConfig) error
	GetMailConfig(ctx context.Context) (*model.MailConfig, error)
	SaveMailConfig(ctx context.Context, cfg *model.MailConfig) error
}

// Store is everything a backing database provides.
type Store interface {
	UserRepository
	SettingsRepository
	Close() error
}
