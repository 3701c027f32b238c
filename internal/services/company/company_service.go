package company

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mosaichq/backoffice/internal/notify"
	"github.com/mosaichq/backoffice/internal/perrors"
	"github.com/mosaichq/backoffice/internal/services/membership"
	"github.com/mosaichq/backoffice/internal/services/token"
	"github.com/mosaichq/backoffice/internal/services/user"
)

// Store is the company data access. *CompanyRepo is the Postgres
// implementation.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Company, error)
	GetByTaxID(ctx context.Context, taxID string) (*Company, error)
	List(ctx context.Context, page, limit int) ([]Company, int, error)
	CreateWithAdmin(ctx context.Context, c *Company, newAdmin *user.User, memberships []*membership.Membership) error
	Update(ctx context.Context, c *Company) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// UserStore is the slice of identity access the lifecycle needs.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
}

// TokenIssuer issues first-access tokens for freshly provisioned admins.
type TokenIssuer interface {
	Issue(ctx context.Context, userID uuid.UUID, kind token.Kind) (string, error)
}

// Resolver is the slice of membership resolution the lifecycle needs.
type Resolver interface {
	IsCompanyAdmin(ctx context.Context, userID, companyID uuid.UUID) (bool, error)
}

type CompanyService struct {
	store    Store
	users    UserStore
	tokens   TokenIssuer
	resolver Resolver
	notifier notify.Sender
	baseURL  string
}

func NewCompanyService(store Store, users UserStore, tokens TokenIssuer, resolver Resolver, notifier notify.Sender, baseURL string) *CompanyService {
	return &CompanyService{
		store:    store,
		users:    users,
		tokens:   tokens,
		resolver: resolver,
		notifier: notifier,
		baseURL:  baseURL,
	}
}

// Create provisions a company together with its initial admin. The tax id
// must be unique among active companies, checked before any write. The
// admin email either matches an existing account (reused untouched) or a
// provisional account is created inside the same transaction as the
// company and its bootstrap admin membership.
func (s *CompanyService) Create(ctx context.Context, actorID uuid.UUID, req *CreateCompanyRequest) (*CreateCompanyResult, error) {
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to load actor", err)
	}
	if actor == nil || !actor.IsSuperuser {
		return nil, perrors.NewErrForbidden("Only superusers can create companies", nil)
	}

	if req.Name == "" || req.TaxID == "" || req.AdminEmail == "" {
		return nil, perrors.NewErrInvalidRequest("Name, tax id and admin email are required", nil)
	}

	if existing, err := s.store.GetByTaxID(ctx, req.TaxID); err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to check tax id", err)
	} else if existing != nil {
		return nil, perrors.NewErrConflict("A company with this tax id already exists", nil)
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

	c := &Company{
		ID:        uuid.New(),
		Name:      req.Name,
		TaxID:     req.TaxID,
		IsActive:  true,
		CreatedBy: &actorID,
	}

	bootstrap := &membership.Membership{
		ID:           uuid.New(),
		UserID:       admin.ID,
		ResourceType: membership.ResourceCompany,
		ResourceID:   c.ID,
		Role:         membership.RoleAdmin,
	}

	if err := s.store.CreateWithAdmin(ctx, c, newAdmin, []*membership.Membership{bootstrap}); err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to create company", err)
	}

	if newAdmin != nil {
		s.dispatchFirstAccess(ctx, admin)
	}

	return &CreateCompanyResult{Company: c, Admin: admin}, nil
}

func (s *CompanyService) GetByID(ctx context.Context, id uuid.UUID) (*Company, error) {
	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to get company", err)
	}
	if c == nil {
		return nil, perrors.NewErrNotFound("Company not found", nil)
	}
	return c, nil
}

func (s *CompanyService) List(ctx context.Context, page, limit int) ([]Company, int, error) {
	companies, total, err := s.store.List(ctx, page, limit)
	if err != nil {
		return nil, 0, perrors.NewErrInternalServerError("Failed to list companies", err)
	}
	return companies, total, nil
}

// Update modifies mutable company fields. Allowed for superusers and the
// company's own admins.
func (s *CompanyService) Update(ctx context.Context, actorID, companyID uuid.UUID, req *UpdateCompanyRequest) (*Company, error) {
	c, err := s.GetByID(ctx, companyID)
	if err != nil {
		return nil, err
	}

	if err := s.assertCanManage(ctx, actorID, companyID); err != nil {
		return nil, err
	}

	if req.Name != nil && *req.Name != "" {
		c.Name = *req.Name
	}
	if req.IsActive != nil {
		c.IsActive = *req.IsActive
	}

	if err := s.store.Update(ctx, c); err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to update company", err)
	}
	return c, nil
}

// Deactivate soft-deletes a company. Superuser only.
func (s *CompanyService) Deactivate(ctx context.Context, actorID, companyID uuid.UUID) error {
	actor, err := s.users.GetByID(ctx, actorID)
	if err != nil {
		return perrors.NewErrInternalServerError("Failed to load actor", err)
	}
	if actor == nil || !actor.IsSuperuser {
		return perrors.NewErrForbidden("Only superusers can deactivate companies", nil)
	}

	if _, err := s.GetByID(ctx, companyID); err != nil {
		return err
	}

	if err := s.store.SoftDelete(ctx, companyID); err != nil {
		return perrors.NewErrInternalServerError("Failed to deactivate company", err)
	}
	return nil
}

func (s *CompanyService) assertCanManage(ctx context.Context, actorID, companyID uuid.UUID) error {
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

// dispatchFirstAccess issues the onboarding token and hands the welcome
// notification to the out-of-band sender. The company is already
// committed; failures here are logged and never surfaced.
func (s *CompanyService) dispatchFirstAccess(ctx context.Context, u *user.User) {
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
