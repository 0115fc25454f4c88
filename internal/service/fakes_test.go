package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/identity-portal/internal/apperror"
	"github.com/sakif/identity-portal/internal/auth"
	"github.com/sakif/identity-portal/internal/model"
	"github.com/sakif/identity-portal/internal/notify"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory repository.UserRepository enforcing the
// same unique keys as the real stores. Users are cloned on the way in and
// out so tests cannot mutate stored state by accident.
type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User
	nextID int
	saves  int

	saveErr error
	findErr error
	block   bool // when set, every call waits for ctx to expire
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User), nextID: 1}
}

func (f *fakeUserRepo) wait(ctx context.Context) error {
	if !f.block {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeUserRepo) find(ctx context.Context, match func(*model.User) bool) (*model.User, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, u := range f.users {
		if match(u) {
			return u.Clone(), nil
		}
	}
	return nil, apperror.NotFound("user not found")
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return f.find(ctx, func(u *model.User) bool { return u.ID == id })
}

func (f *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return f.find(ctx, func(u *model.User) bool { return u.Email == email })
}

func (f *fakeUserRepo) FindByVerificationToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, apperror.NotFound("user not found")
	}
	return f.find(ctx, func(u *model.User) bool { return u.VerificationToken == token })
}

func (f *fakeUserRepo) FindByFederatedID(ctx context.Context, federatedID string) (*model.User, error) {
	if federatedID == "" {
		return nil, apperror.NotFound("user not found")
	}
	return f.find(ctx, func(u *model.User) bool { return u.FederatedID == federatedID })
}

func (f *fakeUserRepo) Save(ctx context.Context, user *model.User) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}

	for id, u := range f.users {
		if id == user.ID {
			continue
		}
		if u.Email == user.Email ||
			(user.FederatedID != "" && u.FederatedID == user.FederatedID) {
			return apperror.Conflict("unique violation")
		}
	}

	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = fmt.Sprintf("user-%d", f.nextID)
		f.nextID++
		user.CreatedAt = now
	}
	if user.AuthProvider == "" {
		user.AuthProvider = model.ProviderLocal
	}
	user.UpdatedAt = now
	f.users[user.ID] = user.Clone()
	f.saves++
	return nil
}

func (f *fakeUserRepo) UpdatePasswordHash(ctx context.Context, id, current, hash string) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	u, ok := f.users[id]
	if !ok || u.PasswordHash != current {
		return apperror.Conflict("user changed since it was read")
	}
	u.PasswordHash = hash
	u.UpdatedAt = time.Now().UTC()
	f.saves++
	return nil
}

func (f *fakeUserRepo) FindAll(ctx context.Context) ([]*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	out := make([]*model.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// put stores u directly, bypassing Save bookkeeping.
func (f *fakeUserRepo) put(u *model.User) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == "" {
		u.ID = fmt.Sprintf("user-%d", f.nextID)
		f.nextID++
	}
	f.users[u.ID] = u.Clone()
	return u
}

func (f *fakeUserRepo) get(id string) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id].Clone()
}

func (f *fakeUserRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users)
}

type fakeSender struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) last() notify.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return notify.Message{}
	}
	return f.sent[len(f.sent)-1]
}

// fakeSettingsRepo stores the singleton settings rows.
type fakeSettingsRepo struct {
	federation *model.FederationConfig
	mail       *model.MailConfig
	err        error
}

func (f *fakeSettingsRepo) GetFederationConfig(context.Context) (*model.FederationConfig, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.federation == nil {
		return nil, apperror.NotFound("federation config not found")
	}
	c := *f.federation
	return &c, nil
}

func (f *fakeSettingsRepo) SaveFederationConfig(_ context.Context, cfg *model.FederationConfig) error {
	if f.err != nil {
		return f.err
	}
	cfg.UpdatedAt = time.Now().UTC()
	c := *cfg
	f.federation = &c
	return nil
}

func (f *fakeSettingsRepo) GetMailConfig(context.Context) (*model.MailConfig, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.mail == nil {
		return nil, apperror.NotFound("mail config not found")
	}
	c := *f.mail
	return &c, nil
}

func (f *fakeSettingsRepo) SaveMailConfig(_ context.Context, cfg *model.MailConfig) error {
	if f.err != nil {
		return f.err
	}
	cfg.UpdatedAt = time.Now().UTC()
	c := *cfg
	f.mail = &c
	return nil
}

var errDBDown = errors.New("database is down")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testHasher() *auth.PasswordHasher {
	return auth.NewPasswordHasherForTest(bcrypt.MinCost)
}

// newTestIdentityService wires an IdentityService with fakes and a
// controllable clock.
func newTestIdentityService(t *testing.T, repo *fakeUserRepo, sender *fakeSender) (*IdentityService, *time.Time) {
	t.Helper()
	svc := NewIdentityService(repo, testHasher(), sender, nil, discardLogger(), IdentityOptions{
		FromName:      "Web Portal",
		StoreTimeout:  200 * time.Millisecond,
		NotifyTimeout: 200 * time.Millisecond,
	})
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return svc, &now
}

func validSignup(email string) SignupInput {
	return SignupInput{
		FirstName:       "Jo",
		LastName:        "Doe",
		Email:           email,
		Password:        "Aa1!aaaa",
		ConfirmPassword: "Aa1!aaaa",
		BaseURL:         "http://localhost:8080",
	}
}
