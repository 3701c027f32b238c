package workspace

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mosaichq/backoffice/internal/notify"
	"github.com/mosaichq/backoffice/internal/perrors"
	"github.com/mosaichq/backoffice/internal/services/company"
	"github.com/mosaichq/backoffice/internal/services/membership"
	"github.com/mosaichq/backoffice/internal/services/token"
	"github.com/mosaichq/backoffice/internal/services/user"
)

// Store is the workspace data access. *WorkspaceRepo is the Postgres
// implementation.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Workspace, error)
	ListByCompany(ctx context.Context, companyID uuid.UUID, page, limit int) ([]Workspace, int, error)
	CreateWithAdmin(ctx context.Context, w *Workspace, newAdmin *user.User, memberships []*membership.Membership) error
	Update(ctx context.Context, w *Workspace) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
}

type CompanyStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*company.Company, error)
}

type TokenIssuer interface {
	Issue(ctx context.Context, userID uuid.UUID, kind token.Kind) (string, error)
}

// Resolver is the slice of membership resolution the lifecycle needs.
type Resolver interface {
	IsCompanyAdmin(ctx context.Context, userID, companyID uuid.UUID) (bool, error)
	FindAnyActiveMembership(ctx context.Context, userID, companyID uuid.UUID) (*membership.Membership, error)
}

type WorkspaceService struct {
	store     Store
	users     UserStore
	companies CompanyStore
	tokens    TokenIssuer
	resolver  Resolver
	notifier  notify.Sender
	baseURL   string
}

func NewWorkspaceService(store Store, users UserStore, companies CompanyStore, tokens TokenIssuer, resolver Resolver, notifier notify.Sender, baseURL string) *WorkspaceService {
	return &WorkspaceService{
		store:     store,
		users:     users,
		companies: companies,
		tokens:    tokens,
		resolver:  resolver,
		notifier:  notifier,
		baseURL:   baseURL,
	}
}

// Create provisions a workspace under a company together with its bound
// admin. The admin email either matches an existing account (reused
// untouched) or a provisional account is created inside the same
// transaction. When the admin has no prior tie to the owning company, an
// implicit company member row is created alongside the workspace admin
// row so the account shows up in company-level listings.
func (s *WorkspaceService) Create(ctx context.Context, actorID, companyID uuid.UUID, req *CreateWorkspaceRequest) (*CreateWorkspaceResult, error) {
	if err := s.assertCanManage(ctx, actorID, companyID); err != nil {
		return nil, err
	}

	if req.Name == "" || req.AdminEmail == "" {
		return nil, perrors.NewErrInvalidRequest("Name and admin email are required", nil)
	}

	c, err := s.companies.GetByID(ctx, companyID)
	if err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to get company", err)
	}
	if c == nil {
		return nil, perrors.NewErrNotFound("Company not found", nil)
	}
	if !c.IsActive {
		return nil, perrors.NewErrBadRequest("Company is not active", nil)
	}

	admin, err := s.users.GetByEmail(ctx, req.AdminEmail)
	if err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to look up admin", err)
	}
	if admin != nil && !admin.IsActive {
		return nil, perrors.NewErrConflict("Admin email belongs to a deactivated account", nil)
	}

	var newAdmin *user.User
	if admin == nil {
		newAdmin, err = user.NewProvisional(req.AdminEmail, req.AdminName)
		if err != nil {
			return nil, perrors.NewErrInternalServerError("Failed to provision admin account", err)
		}
		newAdmin.ID = uuid.New()
		admin = newAdmin
	}

	w := &Workspace{
		ID:          uuid.New(),
		CompanyID:   companyID,
		Name:        req.Name,
		Description: req.Description,
		IsActive:    true,
		CreatedBy:   &actorID,
	}

	memberships := []*membership.Membership{{
		ID:           uuid.New(),
		UserID:       admin.ID,
		ResourceType: membership.ResourceWorkspace,
		ResourceID:   w.ID,
		Role:         membership.RoleWorkspaceAdmin,
	}}

	needsCompanyTie := newAdmin != nil
	if !needsCompanyTie {
		tie, err := s.resolver.FindAnyActiveMembership(ctx, admin.ID, companyID)
		if err != nil {
			return nil, perrors.NewErrInternalServerError("Failed to resolve admin footprint", err)
		}
		needsCompanyTie = tie == nil
	}
	if needsCompanyTie {
		memberships = append(memberships, &membership.Membership{
			ID:           uuid.New(),
			UserID:       admin.ID,
			ResourceType: membership.ResourceCompany,
			ResourceID:   companyID,
			Role:         membership.RoleMember,
		})
	}

	if err := s.store.CreateWithAdmin(ctx, w, newAdmin, memberships); err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to create workspace", err)
	}

	if newAdmin != nil {
		s.dispatchFirstAccess(ctx, admin)
	}

	return &CreateWorkspaceResult{Workspace: w, Admin: admin}, nil
}

func (s *WorkspaceService) GetByID(ctx context.Context, id uuid.UUID) (*Workspace, error) {
	w, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to get workspace", err)
	}
	if w == nil {
		return nil, perrors.NewErrNotFound("Workspace not found", nil)
	}
	return w, nil
}

func (s *WorkspaceService) ListByCompany(ctx context.Context, companyID uuid.UUID, page, limit int) ([]Workspace, int, error) {
	workspaces, total, err := s.store.ListByCompany(ctx, companyID, page, limit)
	if err != nil {
		return nil, 0, perrors.NewErrInternalServerError("Failed to list workspaces", err)
	}
	return workspaces, total, nil
}

func (s *WorkspaceService) Update(ctx context.Context, actorID, workspaceID uuid.UUID, req *UpdateWorkspaceRequest) (*Workspace, error) {
	w, err := s.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	if err := s.assertCanManage(ctx, actorID, w.CompanyID); err != nil {
		return nil, err
	}

	if req.Name != nil && *req.Name != "" {
		w.Name = *req.Name
	}
	if req.Description != nil {
		w.Description = *req.Description
	}
	if req.IsActive != nil {
		w.IsActive = *req.IsActive
	}

	if err := s.store.Update(ctx, w); err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to update workspace", err)
	}
	return w, nil
}

// Deactivate soft-deletes a workspace. Memberships scoped to it stay in
// place; role resolution ignores rows pointing at deactivated
// workspaces.
func (s *WorkspaceService) Deactivate(ctx context.Context, actorID, workspaceID uuid.UUID) error {
	w, err := s.GetByID(ctx, workspaceID)
	if err != nil {
		return err
	}

	if err := s.assertCanManage(ctx, actorID, w.CompanyID); err != nil {
		return err
	}

	if err := s.store.SoftDelete(ctx, workspaceID); err != nil {
		return perrors.NewErrInternalServerError("Failed to deactivate workspace", err)
	}
	return nil
}

func (s *WorkspaceService) assertCanManage(ctx context.Context, actorID, companyID uuid.UUID) error {
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return perrors.NewErrInternalServerError("Failed to load actor", err)
	}
	if actor == nil {
		return perrors.NewErrForbidden("Actor not found", nil)
	}
	if actor.IsSuperuser {
		return nil
	}

	isAdmin, err := s.resolver.IsCompanyAdmin(ctx, actorID, companyID)
	if err != nil {
		return perrors.NewErrInternalServerError("Failed to resolve actor role", err)
	}
	if !isAdmin {
		return perrors.NewErrForbidden("Company admin role required", nil)
	}
	return nil
}

func (s *WorkspaceService) dispatchFirstAccess(ctx context.Context, u *user.User) {
	ctx = context.WithoutCancel(ctx)

	raw, err := s.tokens.Issue(ctx, u.ID, token.KindFirstAccess)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to issue first-access token", slog.Any("error", err), slog.String("user_id", u.ID.String()))
		return
	}

	err = s.notifier.Send(ctx, notify.KindFirstAccess, u.Email, map[string]string{
		"name": u.Name,
		"link": fmt.Sprintf("%s/first-access?token=%s", s.baseURL, raw),
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to dispatch first-access notification", slog.Any("error", err), slog.String("user_id", u.ID.String()))
	}
}
