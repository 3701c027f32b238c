package workspace

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaichq/backoffice/internal/notify"
	"github.com/mosaichq/backoffice/internal/perrors"
	"github.com/mosaichq/backoffice/internal/services/company"
	"github.com/mosaichq/backoffice/internal/services/membership"
	"github.com/mosaichq/backoffice/internal/services/token"
	"github.com/mosaichq/backoffice/internal/services/user"
)

type fakeWorkspaceStore struct {
	workspaces  map[uuid.UUID]*Workspace
	users       map[uuid.UUID]*user.User
	memberships []*membership.Membership
}

func newFakeWorkspaceStore() *fakeWorkspaceStore {
	return &fakeWorkspaceStore{
		workspaces: map[uuid.UUID]*Workspace{},
		users:      map[uuid.UUID]*user.User{},
	}
}

func (f *fakeWorkspaceStore) GetByID(_ context.Context, id uuid.UUID) (*Workspace, error) {
	w, ok := f.workspaces[id]
	if !ok || w.DeletedAt != nil {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (f *fakeWorkspaceStore) ListByCompany(_ context.Context, companyID uuid.UUID, page, limit int) ([]Workspace, int, error) {
	out := []Workspace{}
	for _, w := range f.workspaces {
		if w.CompanyID == companyID && w.DeletedAt == nil {
			out = append(out, *w)
		}
	}
	return out, len(out), nil
}

func (f *fakeWorkspaceStore) CreateWithAdmin(_ context.Context, w *Workspace, newAdmin *user.User, memberships []*membership.Membership) error {
	if newAdmin != nil {
		f.users[newAdmin.ID] = newAdmin
	}
	f.workspaces[w.ID] = w
	f.memberships = append(f.memberships, memberships...)
	return nil
}

func (f *fakeWorkspaceStore) Update(_ context.Context, w *Workspace) error {
	f.workspaces[w.ID] = w
	return nil
}

func (f *fakeWorkspaceStore) SoftDelete(_ context.Context, id uuid.UUID) error {
	w, ok := f.workspaces[id]
	if !ok {
		return errors.New("workspace not found")
	}
	now := w.CreatedAt
	w.DeletedAt = &now
	return nil
}

type fakeUsers struct{ users map[uuid.UUID]*user.User }

func (f *fakeUsers) add(u *user.User) *user.User {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	f.users[u.ID] = u
	return u
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*user.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

type fakeCompanies struct{ companies map[uuid.UUID]*company.Company }

func (f *fakeCompanies) GetByID(_ context.Context, id uuid.UUID) (*company.Company, error) {
	c, ok := f.companies[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

type fakeIssuer struct {
	issued []token.Kind
}

func (f *fakeIssuer) Issue(_ context.Context, userID uuid.UUID, kind token.Kind) (string, error) {
	f.issued = append(f.issued, kind)
	return "raw-onboarding-token", nil
}

type fakeResolver struct {
	admins map[uuid.UUID]bool
	ties   map[uuid.UUID]*membership.Membership
}

func (f *fakeResolver) IsCompanyAdmin(_ context.Context, userID, companyID uuid.UUID) (bool, error) {
	return f.admins[userID], nil
}

func (f *fakeResolver) FindAnyActiveMembership(_ context.Context, userID, companyID uuid.UUID) (*membership.Membership, error) {
	return f.ties[userID], nil
}

type fakeSender struct{ sent int }

func (f *fakeSender) Send(_ context.Context, kind notify.Kind, recipient string, data map[string]string) error {
	f.sent++
	return nil
}

type fixture struct {
	store     *fakeWorkspaceStore
	users     *fakeUsers
	companies *fakeCompanies
	issuer    *fakeIssuer
	resolver  *fakeResolver
	sender    *fakeSender
	svc       *WorkspaceService

	companyID uuid.UUID
}

func newFixture() *fixture {
	store := newFakeWorkspaceStore()
	users := &fakeUsers{users: map[uuid.UUID]*user.User{}}
	companies := &fakeCompanies{companies: map[uuid.UUID]*company.Company{}}
	issuer := &fakeIssuer{}
	resolver := &fakeResolver{admins: map[uuid.UUID]bool{}, ties: map[uuid.UUID]*membership.Membership{}}
	sender := &fakeSender{}

	companyID := uuid.New()
	companies.companies[companyID] = &company.Company{ID: companyID, Name: "Acme", TaxID: "12-345", IsActive: true}

	return &fixture{
		store:     store,
		users:     users,
		companies: companies,
		issuer:    issuer,
		resolver:  resolver,
		sender:    sender,
		svc:       NewWorkspaceService(store, users, companies, issuer, resolver, sender, "https://backoffice.test"),
		companyID: companyID,
	}
}

func (fx *fixture) companyAdmin() *user.User {
	u := fx.users.add(&user.User{Email: "admin@acme.test", Name: "Admin", IsActive: true})
	fx.resolver.admins[u.ID] = true
	fx.resolver.ties[u.ID] = &membership.Membership{ID: uuid.New(), UserID: u.ID}
	return u
}

func requireCode(t *testing.T, err error, code perrors.ErrCode) {
	t.Helper()
	require.Error(t, err)
	var perr perrors.Err
	require.True(t, errors.As(err, &perr), "expected perrors.Err, got %v", err)
	assert.Equal(t, code, perr.Code)
}

func TestCreateProvisionsNewAdminWithCompanyTie(t *testing.T) {
	fx := newFixture()
	actor := fx.companyAdmin()

	res, err := fx.svc.Create(context.Background(), actor.ID, fx.companyID, &CreateWorkspaceRequest{
		Name: "Warehouse", Description: "Inbound logistics", AdminEmail: "lead@acme.test",
	})
	require.NoError(t, err)

	assert.Equal(t, fx.companyID, res.Workspace.CompanyID)
	assert.Equal(t, "Inbound logistics", res.Workspace.Description)
	assert.True(t, res.Admin.MustResetPassword)

	require.Len(t, fx.store.memberships, 2, "workspace admin row plus implicit company member row")
	byType := map[membership.ResourceType]*membership.Membership{}
	for _, m := range fx.store.memberships {
		byType[m.ResourceType] = m
	}

	ws := byType[membership.ResourceWorkspace]
	require.NotNil(t, ws)
	assert.Equal(t, res.Workspace.ID, ws.ResourceID)
	assert.Equal(t, membership.RoleWorkspaceAdmin, ws.Role)

	tie := byType[membership.ResourceCompany]
	require.NotNil(t, tie)
	assert.Equal(t, fx.companyID, tie.ResourceID)
	assert.Equal(t, membership.RoleMember, tie.Role)

	assert.Equal(t, []token.Kind{token.KindFirstAccess}, fx.issuer.issued)
	assert.Equal(t, 1, fx.sender.sent)
}

func TestCreateSkipsTieForExistingCompanyMember(t *testing.T) {
	fx := newFixture()
	actor := fx.companyAdmin()

	existing := fx.users.add(&user.User{Email: "lead@acme.test", Name: "Lead", IsActive: true})
	fx.resolver.ties[existing.ID] = &membership.Membership{ID: uuid.New(), UserID: existing.ID}

	res, err := fx.svc.Create(context.Background(), actor.ID, fx.companyID, &CreateWorkspaceRequest{
		Name: "Warehouse", AdminEmail: "lead@acme.test",
	})
	require.NoError(t, err)

	assert.Equal(t, existing.ID, res.Admin.ID)
	require.Len(t, fx.store.memberships, 1, "no duplicate company tie for known members")
	assert.Equal(t, membership.ResourceWorkspace, fx.store.memberships[0].ResourceType)
	assert.Empty(t, fx.issuer.issued)
	assert.Equal(t, 0, fx.sender.sent)
}

func TestCreateBackfillsTieForExistingStranger(t *testing.T) {
	fx := newFixture()
	actor := fx.companyAdmin()

	// Account exists but has no footprint in this company
	fx.users.add(&user.User{Email: "lead@acme.test", Name: "Lead", IsActive: true})

	_, err := fx.svc.Create(context.Background(), actor.ID, fx.companyID, &CreateWorkspaceRequest{
		Name: "Warehouse", AdminEmail: "lead@acme.test",
	})
	require.NoError(t, err)

	require.Len(t, fx.store.memberships, 2)
	assert.Empty(t, fx.issuer.issued, "existing accounts get no onboarding token")
}

func TestCreateRejectsDeactivatedAdminAccount(t *testing.T) {
	fx := newFixture()
	actor := fx.companyAdmin()

	fx.users.add(&user.User{Email: "lead@acme.test", Name: "Lead", IsActive: false})

	_, err := fx.svc.Create(context.Background(), actor.ID, fx.companyID, &CreateWorkspaceRequest{
		Name: "Warehouse", AdminEmail: "lead@acme.test",
	})
	requireCode(t, err, perrors.ErrCodeConflict)
	assert.Empty(t, fx.store.workspaces, "rejected creation must not write a workspace")
}

func TestCreateForbiddenForNonAdmin(t *testing.T) {
	fx := newFixture()
	actor := fx.users.add(&user.User{Email: "member@acme.test", IsActive: true})

	_, err := fx.svc.Create(context.Background(), actor.ID, fx.companyID, &CreateWorkspaceRequest{
		Name: "Warehouse", AdminEmail: "lead@acme.test",
	})
	requireCode(t, err, perrors.ErrCodeForbidden)
}

func TestCreateAllowsSuperuser(t *testing.T) {
	fx := newFixture()
	root := fx.users.add(&user.User{Email: "root@backoffice.test", IsActive: true, IsSuperuser: true})

	_, err := fx.svc.Create(context.Background(), root.ID, fx.companyID, &CreateWorkspaceRequest{
		Name: "Warehouse", AdminEmail: "lead@acme.test",
	})
	require.NoError(t, err)
}

func TestCreateRejectsInactiveCompany(t *testing.T) {
	fx := newFixture()
	actor := fx.companyAdmin()
	fx.companies.companies[fx.companyID].IsActive = false

	_, err := fx.svc.Create(context.Background(), actor.ID, fx.companyID, &CreateWorkspaceRequest{
		Name: "Warehouse", AdminEmail: "lead@acme.test",
	})
	requireCode(t, err, perrors.ErrCodeBadRequest)
}

func TestCreateUnknownCompanyNotFound(t *testing.T) {
	fx := newFixture()
	root := fx.users.add(&user.User{Email: "root@backoffice.test", IsActive: true, IsSuperuser: true})

	_, err := fx.svc.Create(context.Background(), root.ID, uuid.New(), &CreateWorkspaceRequest{
		Name: "Warehouse", AdminEmail: "lead@acme.test",
	})
	requireCode(t, err, perrors.ErrCodeNotFound)
}

func TestUpdateAndDeactivate(t *testing.T) {
	fx := newFixture()
	actor := fx.companyAdmin()

	w := &Workspace{ID: uuid.New(), CompanyID: fx.companyID, Name: "Warehouse", Description: "Inbound logistics", IsActive: true}
	fx.store.workspaces[w.ID] = w

	newName := "Warehouse North"
	updated, err := fx.svc.Update(context.Background(), actor.ID, w.ID, &UpdateWorkspaceRequest{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "Warehouse North", updated.Name)
	assert.Equal(t, "Inbound logistics", updated.Description, "absent description leaves the field untouched")

	newDesc := "Northern inbound logistics"
	updated, err = fx.svc.Update(context.Background(), actor.ID, w.ID, &UpdateWorkspaceRequest{Description: &newDesc})
	require.NoError(t, err)
	assert.Equal(t, "Northern inbound logistics", updated.Description)
	assert.Equal(t, "Warehouse North", updated.Name)

	require.NoError(t, fx.svc.Deactivate(context.Background(), actor.ID, w.ID))

	got, err := fx.svc.GetByID(context.Background(), w.ID)
	requireCode(t, err, perrors.ErrCodeNotFound)
	assert.Nil(t, got)
}
