// Package service holds the identity rules: how accounts are created,
// verified, logged into, and reconciled across the local and federated
// login paths.
//
//	Handler (HTTP) → IdentityService → UserRepository (DB)
//	                                 ↘ notify.Sender (verification mail)
//	                                 ↘ lock.Locker   (per-email serialization)
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sakif/identity-portal/internal/apperror"
	"github.com/sakif/identity-portal/internal/auth"
	"github.com/sakif/identity-portal/internal/lock"
	"github.com/sakif/identity-portal/internal/model"
	"github.com/sakif/identity-portal/internal/notify"
	"github.com/sakif/identity-portal/internal/repository"
)

const (
	DefaultStoreTimeout  = 5 * time.Second
	DefaultNotifyTimeout = 10 * time.Second

	msgEmailRegistered    = "Email already registered"
	msgInvalidToken       = "Invalid verification token"
	msgTokenExpired       = "Verification token has expired"
	msgInvalidCredentials = "Invalid credentials"
	msgEmailNotVerified   = "Please verify your email before logging in"
	msgSubjectRequired    = "Federated identity has no subject"
	msgFederatedEmail     = "Federated identity has no email"
	msgLinkedElsewhere    = "Email is linked to a different federated identity"
	msgUnverifiedLink     = "Identity provider has not verified this email"
)

// SignupInput is the local registration form. BaseURL is the externally
// visible origin used to build the verification link.
type SignupInput struct {
	FirstName       string
	LastName        string
	Email           string
	Password        string
	ConfirmPassword string
	BaseURL         string
}

// IdentityOptions tunes an IdentityService. Zero values pick defaults.
type IdentityOptions struct {
	FromName      string // signature of the verification email
	StoreTimeout  time.Duration
	NotifyTimeout time.Duration
}

// IdentityService implements signup, email verification, local login,
// and federated login on top of a UserRepository.
type IdentityService struct {
	users  repository.UserRepository
	hasher *auth.PasswordHasher
	sender notify.Sender
	locker lock.Locker
	logger *slog.Logger

	fromName      string
	storeTimeout  time.Duration
	notifyTimeout time.Duration

	newToken func() (string, error)
	now      func() time.Time

	// dummyHash is compared against when the email is unknown, so a miss
	// costs the same bcrypt work as a wrong password.
	dummyOnce sync.Once
	dummyHash string
}

func NewIdentityService(
	users repository.UserRepository,
	hasher *auth.PasswordHasher,
	sender notify.Sender,
	locker lock.Locker,
	logger *slog.Logger,
	opts IdentityOptions,
) *IdentityService {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = DefaultNotifyTimeout
	}
	if opts.FromName == "" {
		opts.FromName = "Web Portal"
	}
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	return &IdentityService{
		users:         users,
		hasher:        hasher,
		sender:        sender,
		locker:        locker,
		logger:        logger,
		fromName:      opts.FromName,
		storeTimeout:  opts.StoreTimeout,
		notifyTimeout: opts.NotifyTimeout,
		newToken:      auth.NewVerificationToken,
		now:           time.Now,
	}
}

// =========================================================================
// SIGNUP
// =========================================================================

// Signup registers a local account, or refreshes an abandoned unverified
// one, and emails a verification link.
//
// The user is persisted before the email is sent. If sending fails the
// caller gets a dependency error but the record stays, unverified with a
// valid token; signing up again simply reissues the token.
func (s *IdentityService) Signup(ctx context.Context, in SignupInput) (*model.User, error) {
	email, err := validateSignup(in)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, lock.EmailKey(email))
	if err != nil {
		return nil, apperror.Dependency("lock email", err)
	}
	defer unlock()

	user, err := s.lookup(ctx, "find user by email", s.users.FindByEmail, email)
	if err != nil {
		return nil, err
	}
	if user != nil && user.Verified {
		return nil, apperror.Conflict(msgEmailRegistered)
	}
	if user == nil {
		user = &model.User{Email: email, AuthProvider: model.ProviderLocal}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperror.Dependency("hash password", err)
	}
	token, err := s.newToken()
	if err != nil {
		return nil, apperror.Dependency("issue verification token", err)
	}
	now := s.now().UTC()

	user.FirstName = strings.TrimSpace(in.FirstName)
	user.LastName = strings.TrimSpace(in.LastName)
	user.PasswordHash = hash
	user.Verified = false
	user.VerificationToken = token
	user.TokenCreatedAt = &now

	if err := s.save(ctx, "save user", user); err != nil {
		return nil, err
	}

	link := notify.VerificationLink(in.BaseURL, token)
	msg := notify.VerificationEmail(user.Email, user.FirstName, link, s.fromName)

	nctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()
	if err := s.sender.Send(nctx, msg); err != nil {
		s.logger.Error("verification email failed",
			slog.String("user_id", user.ID),
			slog.String("email", user.Email),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Dependency("send verification email", err)
	}

	s.logger.Info("user signed up",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return user, nil
}

// =========================================================================
// VERIFY EMAIL
// =========================================================================

// VerifyEmail consumes a verification token. Expired tokens are left in
// place; a new signup for the same email replaces them.
func (s *IdentityService) VerifyEmail(ctx context.Context, token string) (*model.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperror.NotFound(msgInvalidToken)
	}

	user, err := s.lookup(ctx, "find user by token", s.users.FindByVerificationToken, token)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperror.NotFound(msgInvalidToken)
	}

	if auth.TokenExpired(user.TokenCreatedAt, s.now()) {
		return nil, apperror.Expired(msgTokenExpired)
	}

	user.Verified = true
	user.VerificationToken = ""
	user.TokenCreatedAt = nil

	if err := s.save(ctx, "save user", user); err != nil {
		return nil, err
	}

	s.logger.Info("email verified",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return user, nil
}

// =========================================================================
// LOGIN
// =========================================================================

// Login checks a local password. Unknown email, wrong password, and an
// account without a local credential all produce the same error. The
// verified check runs only after the password matched.
func (s *IdentityService) Login(ctx context.Context, email, password string) (*model.User, error) {
	invalid := apperror.Unauthenticated(apperror.CodeInvalidCredentials, msgInvalidCredentials)

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, invalid
	}

	user, err := s.lookup(ctx, "find user by email", s.users.FindByEmail, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.HasCredential() {
		s.burnCompare(password)
		return nil, invalid
	}

	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("stored credential could not be compared",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, invalid
	}

	if !user.Verified {
		return nil, apperror.Unauthenticated(apperror.CodeEmailNotVerified, msgEmailNotVerified)
	}

	s.logger.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("method", "local"),
	)
	return user, nil
}

func (s *IdentityService) burnCompare(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("identity-portal-dummy")
	})
	if s.dummyHash != "" {
		_ = s.hasher.Verify(s.dummyHash, password)
	}
}

// =========================================================================
// FEDERATED LOGIN
// =========================================================================

// FederatedLogin reconciles a verified identity from the SSO provider
// with the user table:
//
//  1. known subject: refresh display fields
//  2. unknown subject, known email: link the existing account
//  3. neither: create a federated account
//
// Linking marks the account verified and keeps any local password.
func (s *IdentityService) FederatedLogin(ctx context.Context, id model.FederatedIdentity) (*model.User, error) {
	subject := strings.TrimSpace(id.Subject)
	if subject == "" {
		return nil, apperror.ValidationFailed("sub", msgSubjectRequired)
	}
	email := normalizeEmail(id.Email)

	if email != "" {
		unlock, err := s.locker.Lock(ctx, lock.EmailKey(email))
		if err != nil {
			return nil, apperror.Dependency("lock email", err)
		}
		defer unlock()
	}

	user, err := s.lookup(ctx, "find user by federated id", s.users.FindByFederatedID, subject)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return s.refreshFederated(ctx, user, id, email)
	}

	if email == "" {
		return nil, apperror.ValidationFailed("email", msgFederatedEmail)
	}

	user, err = s.lookup(ctx, "find user by email", s.users.FindByEmail, email)
	if err != nil {
		return nil, err
	}

	action := "linked"
	if user != nil {
		if user.FederatedID != "" && user.FederatedID != subject {
			return nil, apperror.Conflict(msgLinkedElsewhere)
		}
		// Linking by an address the provider has not vouched for would
		// hand the local account to whoever typed it in at the IdP.
		if id.EmailUnverified() {
			s.logger.Warn("federated link refused, email not verified by provider",
				slog.String("user_id", user.ID),
			)
			return nil, apperror.Forbidden(msgUnverifiedLink)
		}
		user.FederatedID = subject
		user.AuthProvider = model.ProviderFederated
		user.Verified = true
		user.VerificationToken = ""
		user.TokenCreatedAt = nil
		applyNames(user, id)
	} else {
		action = "created"
		user = &model.User{
			Email:        email,
			FirstName:    strings.TrimSpace(id.FirstName),
			LastName:     strings.TrimSpace(id.LastName),
			Verified:     true,
			FederatedID:  subject,
			AuthProvider: model.ProviderFederated,
		}
	}

	if err := s.save(ctx, "save user", user); err != nil {
		return nil, err
	}

	s.logger.Info("federated account "+action,
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return user, nil
}

func (s *IdentityService) refreshFederated(ctx context.Context, user *model.User, id model.FederatedIdentity, email string) (*model.User, error) {
	applyNames(user, id)

	if email != "" && email != user.Email && !id.EmailUnverified() {
		owner, err := s.lookup(ctx, "find user by email", s.users.FindByEmail, email)
		if err != nil {
			return nil, err
		}
		if owner == nil || owner.ID == user.ID {
			user.Email = email
		} else {
			s.logger.Warn("federated email change ignored, address belongs to another account",
				slog.String("user_id", user.ID),
				slog.String("owner_id", owner.ID),
			)
		}
	}

	if err := s.save(ctx, "save user", user); err != nil {
		return nil, err
	}
	return user, nil
}

// applyNames overwrites display names with non-empty incoming values.
func applyNames(user *model.User, id model.FederatedIdentity) {
	if v := strings.TrimSpace(id.FirstName); v != "" {
		user.FirstName = v
	}
	if v := strings.TrimSpace(id.LastName); v != "" {
		user.LastName = v
	}
}

// =========================================================================
// LOOKUPS
// =========================================================================

// GetUserByID loads the account behind a session.
func (s *IdentityService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	user, err := s.lookup(ctx, "get user by id", s.users.GetUserByID, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperror.NotFound("user not found")
	}
	return user, nil
}

// lookup runs a store finder under the store timeout. Not found yields
// (nil, nil); any other failure becomes a dependency error.
func (s *IdentityService) lookup(
	ctx context.Context,
	op string,
	find func(context.Context, string) (*model.User, error),
	key string,
) (*model.User, error) {
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := find(sctx, key)
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, apperror.ErrNotFound):
		return nil, nil
	default:
		return nil, apperror.Dependency(op, err)
	}
}

// save persists user under the store timeout. Unique violations keep
// their conflict classification.
func (s *IdentityService) save(ctx context.Context, op string, user *model.User) error {
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	err := s.users.Save(sctx, user)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperror.ErrConflict):
		return apperror.Conflict(msgEmailRegistered)
	default:
		return apperror.Dependency(op, err)
	}
}
