package company

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaichq/backoffice/internal/notify"
	"github.com/mosaichq/backoffice/internal/perrors"
	"github.com/mosaichq/backoffice/internal/services/membership"
	"github.com/mosaichq/backoffice/internal/services/token"
	"github.com/mosaichq/backoffice/internal/services/user"
)

type fakeCompanyStore struct {
	companies   map[uuid.UUID]*Company
	users       map[uuid.UUID]*user.User
	memberships []*membership.Membership
}

func newFakeCompanyStore() *fakeCompanyStore {
	return &fakeCompanyStore{
		companies: map[uuid.UUID]*Company{},
		users:     map[uuid.UUID]*user.User{},
	}
}

func (f *fakeCompanyStore) addUser(u *user.User) *user.User {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	f.users[u.ID] = u
	return u
}

func (f *fakeCompanyStore) addSuperuser() *user.User {
	return f.addUser(&user.User{Email: "root@backoffice.test", Name: "Root", IsActive: true, IsSuperuser: true})
}

func (f *fakeCompanyStore) GetByID(_ context.Context, id uuid.UUID) (*Company, error) {
	c, ok := f.companies[id]
	if !ok || c.DeletedAt != nil {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCompanyStore) GetByTaxID(_ context.Context, taxID string) (*Company, error) {
	for _, c := range f.companies {
		if c.TaxID == taxID && c.DeletedAt == nil {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeCompanyStore) List(_ context.Context, page, limit int) ([]Company, int, error) {
	out := []Company{}
	for _, c := range f.companies {
		if c.DeletedAt == nil {
			out = append(out, *c)
		}
	}
	return out, len(out), nil
}

func (f *fakeCompanyStore) CreateWithAdmin(_ context.Context, c *Company, newAdmin *user.User, memberships []*membership.Membership) error {
	if newAdmin != nil {
		f.users[newAdmin.ID] = newAdmin
	}
	f.companies[c.ID] = c
	f.memberships = append(f.memberships, memberships...)
	return nil
}

func (f *fakeCompanyStore) Update(_ context.Context, c *Company) error {
	f.companies[c.ID] = c
	return nil
}

func (f *fakeCompanyStore) SoftDelete(_ context.Context, id uuid.UUID) error {
	c, ok := f.companies[id]
	if !ok {
		return errors.New("company not found")
	}
	now := time.Now().UTC()
	c.DeletedAt = &now
	return nil
}

// UserStore over the same fixture
func (f *fakeCompanyStore) GetUserByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeCompanyStore) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

type fakeUserStore struct{ *fakeCompanyStore }

func (f fakeUserStore) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	return f.GetUserByID(ctx, id)
}

func (f fakeUserStore) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return f.GetUserByEmail(ctx, email)
}

type fakeIssuer struct {
	issued []token.Kind
	raw    string
	err    error
}

func (f *fakeIssuer) Issue(_ context.Context, userID uuid.UUID, kind token.Kind) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.issued = append(f.issued, kind)
	return f.raw, nil
}

type fakeResolver struct{ admins map[uuid.UUID]bool }

func (f *fakeResolver) IsCompanyAdmin(_ context.Context, userID, companyID uuid.UUID) (bool, error) {
	return f.admins[userID], nil
}

type recordedSend struct {
	Kind      notify.Kind
	Recipient string
	Data      map[string]string
}

type fakeSender struct {
	sent []recordedSend
	err  error
}

func (f *fakeSender) Send(_ context.Context, kind notify.Kind, recipient string, data map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, recordedSend{Kind: kind, Recipient: recipient, Data: data})
	return nil
}

type fixture struct {
	store    *fakeCompanyStore
	issuer   *fakeIssuer
	resolver *fakeResolver
	sender   *fakeSender
	svc      *CompanyService
}

func newFixture() *fixture {
	store := newFakeCompanyStore()
	issuer := &fakeIssuer{raw: "raw-onboarding-token"}
	resolver := &fakeResolver{admins: map[uuid.UUID]bool{}}
	sender := &fakeSender{}
	svc := NewCompanyService(store, fakeUserStore{store}, issuer, resolver, sender, "https://backoffice.test")
	return &fixture{store: store, issuer: issuer, resolver: resolver, sender: sender, svc: svc}
}

func requireCode(t *testing.T, err error, code perrors.ErrCode) {
	t.Helper()
	require.Error(t, err)
	var perr perrors.Err
	require.True(t, errors.As(err, &perr), "expected perrors.Err, got %v", err)
	assert.Equal(t, code, perr.Code)
}

func TestCreateRequiresSuperuser(t *testing.T) {
	fx := newFixture()
	actor := fx.store.addUser(&user.User{Email: "plain@acme.test", IsActive: true})

	_, err := fx.svc.Create(context.Background(), actor.ID, &CreateCompanyRequest{
		Name: "Acme", TaxID: "12-345", AdminEmail: "admin@acme.test",
	})
	requireCode(t, err, perrors.ErrCodeForbidden)
}

func TestCreateRejectsDuplicateTaxID(t *testing.T) {
	fx := newFixture()
	root := fx.store.addSuperuser()
	fx.store.companies[uuid.New()] = &Company{ID: uuid.New(), Name: "Existing", TaxID: "12-345", IsActive: true}

	_, err := fx.svc.Create(context.Background(), root.ID, &CreateCompanyRequest{
		Name: "Acme", TaxID: "12-345", AdminEmail: "admin@acme.test",
	})
	requireCode(t, err, perrors.ErrCodeConflict)
	assert.Empty(t, fx.sender.sent, "no notification before any write")
}

func TestCreateProvisionsNewAdmin(t *testing.T) {
	fx := newFixture()
	root := fx.store.addSuperuser()

	res, err := fx.svc.Create(context.Background(), root.ID, &CreateCompanyRequest{
		Name: "Acme", TaxID: "12-345", AdminEmail: "admin@acme.test",
	})
	require.NoError(t, err)

	require.NotNil(t, res.Admin)
	assert.Equal(t, "admin@acme.test", res.Admin.Email)
	assert.Equal(t, "admin", res.Admin.Name, "display name falls back to the email local part")
	assert.True(t, res.Admin.MustResetPassword)
	assert.NotEmpty(t, res.Admin.PasswordHash, "provisional accounts carry an unguessable placeholder")

	require.Len(t, fx.store.memberships, 1)
	m := fx.store.memberships[0]
	assert.Equal(t, res.Admin.ID, m.UserID)
	assert.Equal(t, membership.ResourceCompany, m.ResourceType)
	assert.Equal(t, res.Company.ID, m.ResourceID)
	assert.Equal(t, membership.RoleAdmin, m.Role)

	require.Equal(t, []token.Kind{token.KindFirstAccess}, fx.issuer.issued)
	require.Len(t, fx.sender.sent, 1)
	sent := fx.sender.sent[0]
	assert.Equal(t, notify.KindFirstAccess, sent.Kind)
	assert.Equal(t, "admin@acme.test", sent.Recipient)
	assert.Contains(t, sent.Data["link"], "raw-onboarding-token")
}

func TestCreateReusesExistingAdmin(t *testing.T) {
	fx := newFixture()
	root := fx.store.addSuperuser()
	existing := fx.store.addUser(&user.User{Email: "admin@acme.test", Name: "Known Admin", IsActive: true})

	res, err := fx.svc.Create(context.Background(), root.ID, &CreateCompanyRequest{
		Name: "Acme", TaxID: "12-345", AdminEmail: "admin@acme.test",
	})
	require.NoError(t, err)

	assert.Equal(t, existing.ID, res.Admin.ID)
	assert.Equal(t, "Known Admin", res.Admin.Name, "existing accounts are reused untouched")
	assert.Empty(t, fx.issuer.issued, "no onboarding token for existing accounts")
	assert.Empty(t, fx.sender.sent, "no notification for existing accounts")

	require.Len(t, fx.store.memberships, 1)
	assert.Equal(t, existing.ID, fx.store.memberships[0].UserID)
}

func TestCreateRejectsDeactivatedAdminAccount(t *testing.T) {
	fx := newFixture()
	root := fx.store.addSuperuser()
	fx.store.addUser(&user.User{Email: "admin@acme.test", Name: "Former Admin", IsActive: false})

	_, err := fx.svc.Create(context.Background(), root.ID, &CreateCompanyRequest{
		Name: "Acme", TaxID: "12-345", AdminEmail: "admin@acme.test",
	})
	requireCode(t, err, perrors.ErrCodeConflict)
	assert.Empty(t, fx.store.companies, "rejected creation must not write a company")
}

func TestCreateSurvivesNotificationFailure(t *testing.T) {
	fx := newFixture()
	fx.sender.err = errors.New("broker unreachable")
	root := fx.store.addSuperuser()

	res, err := fx.svc.Create(context.Background(), root.ID, &CreateCompanyRequest{
		Name: "Acme", TaxID: "12-345", AdminEmail: "admin@acme.test",
	})
	require.NoError(t, err, "delivery failures never roll back the company")
	assert.NotNil(t, res.Company)
}

func TestCreateValidatesRequiredFields(t *testing.T) {
	fx := newFixture()
	root := fx.store.addSuperuser()

	_, err := fx.svc.Create(context.Background(), root.ID, &CreateCompanyRequest{Name: "Acme"})
	requireCode(t, err, perrors.ErrCodeInvalidRequest)
}

func TestUpdateAllowsCompanyAdmin(t *testing.T) {
	fx := newFixture()
	admin := fx.store.addUser(&user.User{Email: "admin@acme.test", IsActive: true})
	fx.resolver.admins[admin.ID] = true

	c := &Company{ID: uuid.New(), Name: "Acme", TaxID: "12-345", IsActive: true}
	fx.store.companies[c.ID] = c

	newName := "Acme Corp"
	updated, err := fx.svc.Update(context.Background(), admin.ID, c.ID, &UpdateCompanyRequest{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", updated.Name)
}

func TestUpdateForbiddenForPlainMember(t *testing.T) {
	fx := newFixture()
	member := fx.store.addUser(&user.User{Email: "member@acme.test", IsActive: true})

	c := &Company{ID: uuid.New(), Name: "Acme", TaxID: "12-345", IsActive: true}
	fx.store.companies[c.ID] = c

	newName := "Acme Corp"
	_, err := fx.svc.Update(context.Background(), member.ID, c.ID, &UpdateCompanyRequest{Name: &newName})
	requireCode(t, err, perrors.ErrCodeForbidden)
}

func TestDeactivateRequiresSuperuser(t *testing.T) {
	fx := newFixture()
	admin := fx.store.addUser(&user.User{Email: "admin@acme.test", IsActive: true})
	fx.resolver.admins[admin.ID] = true

	c := &Company{ID: uuid.New(), Name: "Acme", TaxID: "12-345", IsActive: true}
	fx.store.companies[c.ID] = c

	err := fx.svc.Deactivate(context.Background(), admin.ID, c.ID)
	requireCode(t, err, perrors.ErrCodeForbidden)

	root := fx.store.addSuperuser()
	require.NoError(t, fx.svc.Deactivate(context.Background(), root.ID, c.ID))

	got, _ := fx.store.GetByID(context.Background(), c.ID)
	assert.Nil(t, got)
}
