package user

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mosaichq/backoffice/internal/perrors"
	"github.com/mosaichq/backoffice/internal/services/membership"
)

type fakeUserStore struct {
	users       map[uuid.UUID]*User
	memberships []membership.Membership
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[uuid.UUID]*User{}}
}

func (f *fakeUserStore) add(u *User) *User {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	f.users[u.ID] = u
	return u
}

func (f *fakeUserStore) addWithPassword(email, password string) *User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return f.add(&User{Email: email, Name: "Someone", PasswordHash: string(hash), IsActive: true})
}

func (f *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := f.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range f.users {
		if u.Email == email && u.DeletedAt == nil {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUserStore) Create(_ context.Context, u *User) error {
	f.add(u)
	return nil
}

func (f *fakeUserStore) Update(_ context.Context, u *User) error {
	stored, ok := f.users[u.ID]
	if !ok {
		return errors.New("user not found")
	}
	*stored = *u
	return nil
}

func (f *fakeUserStore) SoftDelete(_ context.Context, id uuid.UUID) error {
	u, ok := f.users[id]
	if !ok {
		return errors.New("user not found")
	}
	deleted := u.CreatedAt
	u.DeletedAt = &deleted
	u.IsActive = false
	return nil
}

func (f *fakeUserStore) List(_ context.Context, filter ListFilter) ([]User, int, error) {
	out := []User{}
	for _, u := range f.users {
		if u.DeletedAt != nil {
			continue
		}
		if filter.Search != "" && !strings.Contains(u.Email, filter.Search) && !strings.Contains(u.Name, filter.Search) {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (f *fakeUserStore) ListActiveByUser(_ context.Context, userID uuid.UUID) ([]membership.Membership, error) {
	var out []membership.Membership
	for _, m := range f.memberships {
		if m.UserID == userID && m.DeletedAt == nil {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeUserStore) CountOtherActiveAdmins(_ context.Context, scope membership.Scope, excludingID uuid.UUID) (int, error) {
	count := 0
	for _, m := range f.memberships {
		if m.DeletedAt == nil && m.ID != excludingID && m.Scope() == scope && m.Role == membership.RoleAdmin {
			count++
		}
	}
	return count, nil
}

func requireCode(t *testing.T, err error, code perrors.ErrCode) {
	t.Helper()
	require.Error(t, err)
	var perr perrors.Err
	require.True(t, errors.As(err, &perr), "expected perrors.Err, got %v", err)
	assert.Equal(t, code, perr.Code)
}

func TestAuthenticate(t *testing.T) {
	store := newFakeUserStore()
	svc := NewUserService(store, store)
	u := store.addWithPassword("someone@acme.test", "s3cret")

	got, err := svc.Authenticate(context.Background(), "someone@acme.test", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = svc.Authenticate(context.Background(), "someone@acme.test", "wrong")
	requireCode(t, err, perrors.ErrCodeUnauthorized)

	_, err = svc.Authenticate(context.Background(), "nobody@acme.test", "s3cret")
	requireCode(t, err, perrors.ErrCodeUnauthorized)
}

func TestAuthenticateRejectsInactive(t *testing.T) {
	store := newFakeUserStore()
	svc := NewUserService(store, store)
	u := store.addWithPassword("someone@acme.test", "s3cret")
	u.IsActive = false

	_, err := svc.Authenticate(context.Background(), "someone@acme.test", "s3cret")
	requireCode(t, err, perrors.ErrCodeUnauthorized)
}

func TestChangePassword(t *testing.T) {
	store := newFakeUserStore()
	svc := NewUserService(store, store)
	u := store.addWithPassword("someone@acme.test", "old-pass")
	u.MustResetPassword = true

	err := svc.ChangePassword(context.Background(), u.ID, &ChangePasswordRequest{
		CurrentPassword: "old-pass",
		NewPassword:     "new-pass",
		ConfirmPassword: "new-pass",
	})
	require.NoError(t, err)

	stored := store.users[u.ID]
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("new-pass")))
	assert.False(t, stored.MustResetPassword, "successful change clears the pending reset flag")
}

func TestChangePasswordRejectsWrongCurrent(t *testing.T) {
	store := newFakeUserStore()
	svc := NewUserService(store, store)
	u := store.addWithPassword("someone@acme.test", "old-pass")

	err := svc.ChangePassword(context.Background(), u.ID, &ChangePasswordRequest{
		CurrentPassword: "nope",
		NewPassword:     "new-pass",
		ConfirmPassword: "new-pass",
	})
	requireCode(t, err, perrors.ErrCodeBadRequest)
}

func TestChangePasswordRejectsMismatchedConfirmation(t *testing.T) {
	store := newFakeUserStore()
	svc := NewUserService(store, store)
	u := store.addWithPassword("someone@acme.test", "old-pass")

	err := svc.ChangePassword(context.Background(), u.ID, &ChangePasswordRequest{
		CurrentPassword: "old-pass",
		NewPassword:     "new-pass",
		ConfirmPassword: "other-pass",
	})
	requireCode(t, err, perrors.ErrCodeBadRequest)
}

func TestDeactivateRejectsSelf(t *testing.T) {
	store := newFakeUserStore()
	svc := NewUserService(store, store)
	u := store.addWithPassword("someone@acme.test", "pass")

	err := svc.Deactivate(context.Background(), u.ID, u.ID)
	requireCode(t, err, perrors.ErrCodeBadRequest)
}

func TestDeactivateKeepsSoleCompanyAdmin(t *testing.T) {
	store := newFakeUserStore()
	svc := NewUserService(store, store)
	target := store.addWithPassword("admin@acme.test", "pass")

	companyID := uuid.New()
	store.memberships = []membership.Membership{{
		ID:           uuid.New(),
		UserID:       target.ID,
		ResourceType: membership.ResourceCompany,
		ResourceID:   companyID,
		Role:         membership.RoleAdmin,
	}}

	err := svc.Deactivate(context.Background(), uuid.New(), target.ID)
	requireCode(t, err, perrors.ErrCodeBadRequest)

	got, _ := store.GetByID(context.Background(), target.ID)
	require.NotNil(t, got)
	assert.True(t, got.IsActive)
}

func TestDeactivateAllowsWhenAnotherAdminRemains(t *testing.T) {
	store := newFakeUserStore()
	svc := NewUserService(store, store)
	target := store.addWithPassword("admin@acme.test", "pass")

	companyID := uuid.New()
	store.memberships = []membership.Membership{
		{ID: uuid.New(), UserID: target.ID, ResourceType: membership.ResourceCompany, ResourceID: companyID, Role: membership.RoleAdmin},
		{ID: uuid.New(), UserID: uuid.New(), ResourceType: membership.ResourceCompany, ResourceID: companyID, Role: membership.RoleAdmin},
	}

	require.NoError(t, svc.Deactivate(context.Background(), uuid.New(), target.ID))

	got, _ := store.GetByID(context.Background(), target.ID)
	assert.Nil(t, got)
}

func TestNewProvisional(t *testing.T) {
	u, err := NewProvisional("lead@acme.test", "")
	require.NoError(t, err)

	assert.Equal(t, "lead", u.Name)
	assert.True(t, u.MustResetPassword)
	assert.True(t, u.IsActive)
	assert.NotEmpty(t, u.PasswordHash)

	named, err := NewProvisional("lead@acme.test", "Given Name")
	require.NoError(t, err)
	assert.Equal(t, "Given Name", named.Name)
}

func TestDisplayNameFromEmail(t *testing.T) {
	assert.Equal(t, "lead", DisplayNameFromEmail("lead@acme.test"))
	assert.Equal(t, "no-at-sign", DisplayNameFromEmail("no-at-sign"))
}

func TestCreateSuperuserRejectsDuplicateEmail(t *testing.T) {
	store := newFakeUserStore()
	svc := NewUserService(store, store)
	store.addWithPassword("root@backoffice.test", "pass")

	_, err := svc.CreateSuperuser(context.Background(), "Root", "root@backoffice.test", "pass")
	requireCode(t, err, perrors.ErrCodeConflict)
}
