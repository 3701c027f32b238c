package membership

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/mosaichq/backoffice/internal/perrors"
)

// Store is the data access the resolver runs over. *MembershipRepo is the
// Postgres implementation; tests inject an in-memory fake.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Membership, error)
	FindActive(ctx context.Context, userID uuid.UUID, scope Scope) (*Membership, error)
	FindAnyInCompany(ctx context.Context, userID, companyID uuid.UUID) (*Membership, error)
	ListByUserCompany(ctx context.Context, userID, companyID uuid.UUID) ([]Membership, error)
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]Membership, error)
	CountOtherActiveAdmins(ctx context.Context, scope Scope, excludingID uuid.UUID) (int, error)
	Create(ctx context.Context, m *Membership, companyTie *Membership) error
	UpdateRole(ctx context.Context, id uuid.UUID, role Role, companyTie *Membership) error
	SoftDeleteAll(ctx context.Context, ids []uuid.UUID) error
	SoftDeleteAdminGuarded(ctx context.Context, id uuid.UUID) error
	CompanyWorkspaceIDs(ctx context.Context, companyID uuid.UUID) ([]uuid.UUID, error)
	ListCompaniesTouched(ctx context.Context, userID uuid.UUID) ([]CompanyTouch, error)
	ListCompanyMemberRows(ctx context.Context, companyID uuid.UUID) ([]MemberRow, error)
}

// ActorStore answers whether the acting user holds root authority.
// *user.UserRepo is the Postgres implementation.
type ActorStore interface {
	IsSuperuser(ctx context.Context, userID uuid.UUID) (bool, error)
}

// MembershipService answers "who holds what role where" and owns every
// membership mutation, so the invariants live in one place.
type MembershipService struct {
	store  Store
	actors ActorStore
}

func NewMembershipService(store Store, actors ActorStore) *MembershipService {
	return &MembershipService{store: store, actors: actors}
}

// ResolveEffectiveRole reports the user's raw membership rows within a
// company: the direct company-scope role (nil when the user only appears
// via a workspace) and one entry per workspace of the company. It does not
// invent "workspace admin via company admin" entries; hierarchy is applied
// by callers.
func (s *MembershipService) ResolveEffectiveRole(ctx context.Context, userID, companyID uuid.UUID) (*EffectiveRoleReport, error) {
	rows, err := s.store.ListByUserCompany(ctx, userID, companyID)
	if err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to resolve memberships", err)
	}

	workspaceIDs, err := s.store.CompanyWorkspaceIDs(ctx, companyID)
	if err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to list workspaces", err)
	}

	byWorkspace := map[uuid.UUID]*Membership{}
	report := &EffectiveRoleReport{}
	for i := range rows {
		m := rows[i]
		switch m.ResourceType {
		case ResourceCompany:
			role := m.Role
			id := m.ID
			report.CompanyRole = &role
			report.CompanyMembershipID = &id
		case ResourceWorkspace:
			byWorkspace[m.ResourceID] = &rows[i]
		}
	}

	report.WorkspaceRoles = make([]WorkspaceRole, 0, len(workspaceIDs))
	for _, wsID := range workspaceIDs {
		entry := WorkspaceRole{WorkspaceID: wsID}
		if m, ok := byWorkspace[wsID]; ok {
			role := m.Role
			id := m.ID
			entry.Role = &role
			entry.MembershipID = &id
		}
		report.WorkspaceRoles = append(report.WorkspaceRoles, entry)
	}

	return report, nil
}

// assertActorAuthority gates every membership mutation: the acting user
// must be a superuser or hold an active company-scope admin membership in
// the company being mutated.
func (s *MembershipService) assertActorAuthority(ctx context.Context, actorID, companyID uuid.UUID) error {
	super, err := s.actors.IsSuperuser(ctx, actorID)
	if err != nil {
		return perrors.NewErrInternalServerError("Failed to load actor", err)
	}
	if super {
		return nil
	}

	isAdmin, err := s.IsCompanyAdmin(ctx, actorID, companyID)
	if err != nil {
		return perrors.NewErrInternalServerError("Failed to resolve actor role", err)
	}
	if !isAdmin {
		return perrors.NewErrForbidden("Company admin role required", nil)
	}
	return nil
}

// AssertNotCompanyAdmin guards role-demoting and removal paths: company
// admins are only managed through the dedicated admin operations.
func (s *MembershipService) AssertNotCompanyAdmin(ctx context.Context, companyID, userID uuid.UUID) error {
	m, err := s.store.FindActive(ctx, userID, CompanyScope(companyID))
	if err != nil {
		return perrors.NewErrInternalServerError("Failed to check company role", err)
	}
	if m != nil && m.Role == RoleAdmin {
		return perrors.NewErrForbidden("Company admins cannot be modified through this operation", nil)
	}
	return nil
}

// AssertNotSelf rejects self-targeting for every operation that must not be
// self-applied.
func (s *MembershipService) AssertNotSelf(actorID, targetID uuid.UUID) error {
	if actorID == targetID {
		return perrors.NewErrBadRequest("Operation cannot target your own account", nil)
	}
	return nil
}

func (s *MembershipService) CountOtherActiveAdmins(ctx context.Context, scope Scope, excludingID uuid.UUID) (int, error) {
	return s.store.CountOtherActiveAdmins(ctx, scope, excludingID)
}

// FindAnyActiveMembership is the "does this user have any footprint in the
// tenant" check. Returns nil when the user is a complete stranger to the
// company.
func (s *MembershipService) FindAnyActiveMembership(ctx context.Context, userID, companyID uuid.UUID) (*Membership, error) {
	return s.store.FindAnyInCompany(ctx, userID, companyID)
}

// IsCompanyAdmin reports whether the user holds an active company-scope
// admin membership.
func (s *MembershipService) IsCompanyAdmin(ctx context.Context, userID, companyID uuid.UUID) (bool, error) {
	m, err := s.store.FindActive(ctx, userID, CompanyScope(companyID))
	if err != nil {
		return false, err
	}
	return m != nil && m.Role == RoleAdmin, nil
}

// IsWorkspaceAdmin applies the hierarchy: a company admin administers every
// workspace of the company.
func (s *MembershipService) IsWorkspaceAdmin(ctx context.Context, userID, companyID, workspaceID uuid.UUID) (bool, error) {
	if ok, err := s.IsCompanyAdmin(ctx, userID, companyID); err != nil || ok {
		return ok, err
	}
	m, err := s.store.FindActive(ctx, userID, WorkspaceScope(workspaceID))
	if err != nil {
		return false, err
	}
	return m != nil && m.Role == RoleWorkspaceAdmin, nil
}

// PromoteWorkspaceAdmin raises a user to workspace_admin for a workspace.
// Promotion never inserts a duplicate: an existing workspace row is
// upgraded in place. A user without any company-scope tie gets an implicit
// company member row so they stay discoverable at the company level; the
// upgrade-or-insert and the tie land in one store transaction.
func (s *MembershipService) PromoteWorkspaceAdmin(ctx context.Context, actorID, targetID, companyID, workspaceID uuid.UUID) (*Membership, error) {
	if err := s.assertActorAuthority(ctx, actorID, companyID); err != nil {
		return nil, err
	}
	if err := s.AssertNotSelf(actorID, targetID); err != nil {
		return nil, err
	}

	footprint, err := s.store.FindAnyInCompany(ctx, targetID, companyID)
	if err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to check company membership", err)
	}
	if footprint == nil {
		return nil, perrors.NewErrNotFound("User is not a member of this company", nil)
	}

	if err := s.AssertNotCompanyAdmin(ctx, companyID, targetID); err != nil {
		return nil, err
	}

	existing, err := s.store.FindActive(ctx, targetID, WorkspaceScope(workspaceID))
	if err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to check workspace membership", err)
	}
	if existing != nil && existing.Role == RoleWorkspaceAdmin {
		return nil, perrors.NewErrConflict("User is already a workspace admin", nil)
	}

	companyTie, err := s.store.FindActive(ctx, targetID, CompanyScope(companyID))
	if err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to check company tie", err)
	}
	var implicit *Membership
	if companyTie == nil {
		implicit = &Membership{
			UserID:       targetID,
			ResourceType: ResourceCompany,
			ResourceID:   companyID,
			Role:         RoleMember,
		}
	}

	if existing != nil {
		if err := s.store.UpdateRole(ctx, existing.ID, RoleWorkspaceAdmin, implicit); err != nil {
			return nil, perrors.NewErrInternalServerError("Failed to upgrade membership", err)
		}
		existing.Role = RoleWorkspaceAdmin
		return existing, nil
	}

	promoted := &Membership{
		UserID:       targetID,
		ResourceType: ResourceWorkspace,
		ResourceID:   workspaceID,
		Role:         RoleWorkspaceAdmin,
	}
	if err := s.store.Create(ctx, promoted, implicit); err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to create membership", err)
	}
	return promoted, nil
}

// DemoteWorkspaceAdmin lowers a workspace_admin back to member.
func (s *MembershipService) DemoteWorkspaceAdmin(ctx context.Context, actorID, targetID, companyID, workspaceID uuid.UUID) (*Membership, error) {
	if err := s.assertActorAuthority(ctx, actorID, companyID); err != nil {
		return nil, err
	}
	if err := s.AssertNotSelf(actorID, targetID); err != nil {
		return nil, err
	}
	if err := s.AssertNotCompanyAdmin(ctx, companyID, targetID); err != nil {
		return nil, err
	}

	existing, err := s.store.FindActive(ctx, targetID, WorkspaceScope(workspaceID))
	if err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to check workspace membership", err)
	}
	if existing == nil {
		return nil, perrors.NewErrNotFound("User has no membership for this workspace", nil)
	}
	if existing.Role != RoleWorkspaceAdmin {
		return nil, perrors.NewErrConflict("User is not a workspace admin", nil)
	}

	if err := s.store.UpdateRole(ctx, existing.ID, RoleMember, nil); err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to demote membership", err)
	}
	existing.Role = RoleMember
	return existing, nil
}

// RemoveMember revokes every membership the target holds inside the
// company, in one store transaction. Company admins are out of reach of
// this path.
func (s *MembershipService) RemoveMember(ctx context.Context, actorID, targetID, companyID uuid.UUID) error {
	if err := s.assertActorAuthority(ctx, actorID, companyID); err != nil {
		return err
	}
	if err := s.AssertNotSelf(actorID, targetID); err != nil {
		return err
	}
	if err := s.AssertNotCompanyAdmin(ctx, companyID, targetID); err != nil {
		return err
	}

	rows, err := s.store.ListByUserCompany(ctx, targetID, companyID)
	if err != nil {
		return perrors.NewErrInternalServerError("Failed to list memberships", err)
	}
	if len(rows) == 0 {
		return perrors.NewErrNotFound("User is not a member of this company", nil)
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, m := range rows {
		ids = append(ids, m.ID)
	}
	if err := s.store.SoftDeleteAll(ctx, ids); err != nil {
		return perrors.NewErrInternalServerError("Failed to revoke memberships", err)
	}
	return nil
}

// GrantCompanyAdmin raises an existing company member to company admin,
// upgrading their company-scope row in place when one exists.
func (s *MembershipService) GrantCompanyAdmin(ctx context.Context, actorID, targetID, companyID uuid.UUID) (*Membership, error) {
	if err := s.assertActorAuthority(ctx, actorID, companyID); err != nil {
		return nil, err
	}
	if err := s.AssertNotSelf(actorID, targetID); err != nil {
		return nil, err
	}

	footprint, err := s.store.FindAnyInCompany(ctx, targetID, companyID)
	if err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to check company membership", err)
	}
	if footprint == nil {
		return nil, perrors.NewErrNotFound("User is not a member of this company", nil)
	}

	existing, err := s.store.FindActive(ctx, targetID, CompanyScope(companyID))
	if err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to check company membership", err)
	}

	if existing != nil {
		if existing.Role == RoleAdmin {
			return nil, perrors.NewErrConflict("User is already a company admin", nil)
		}
		if err := s.store.UpdateRole(ctx, existing.ID, RoleAdmin, nil); err != nil {
			return nil, perrors.NewErrInternalServerError("Failed to upgrade membership", err)
		}
		existing.Role = RoleAdmin
		return existing, nil
	}

	granted := &Membership{
		UserID:       targetID,
		ResourceType: ResourceCompany,
		ResourceID:   companyID,
		Role:         RoleAdmin,
	}
	if err := s.store.Create(ctx, granted, nil); err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to create membership", err)
	}
	return granted, nil
}

// RevokeCompanyAdmin soft-deletes a company-scope admin membership. The
// last-admin invariant is enforced inside the store transaction so two
// concurrent revocations cannot both pass the count.
func (s *MembershipService) RevokeCompanyAdmin(ctx context.Context, actorID, companyID, membershipID uuid.UUID) error {
	if err := s.assertActorAuthority(ctx, actorID, companyID); err != nil {
		return err
	}

	target, err := s.store.GetByID(ctx, membershipID)
	if err != nil {
		return perrors.NewErrInternalServerError("Failed to load membership", err)
	}
	if target == nil || target.ResourceType != ResourceCompany || target.ResourceID != companyID || target.Role != RoleAdmin {
		return perrors.NewErrNotFound("Admin membership not found for this company", nil)
	}
	if err := s.AssertNotSelf(actorID, target.UserID); err != nil {
		return err
	}

	err = s.store.SoftDeleteAdminGuarded(ctx, target.ID)
	if errors.Is(err, ErrLastAdmin) {
		return perrors.NewErrBadRequest("Cannot remove the last admin of a company", err)
	}
	if err != nil {
		return perrors.NewErrInternalServerError("Failed to revoke admin membership", err)
	}
	return nil
}

// MyCompanies consolidates the user's membership rows into one entry per
// company: highest-ranked role, earliest created_at as "member since".
func (s *MembershipService) MyCompanies(ctx context.Context, userID uuid.UUID) ([]CompanySummary, error) {
	touches, err := s.store.ListCompaniesTouched(ctx, userID)
	if err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to list companies", err)
	}

	byCompany := map[uuid.UUID]*CompanySummary{}
	var order []uuid.UUID
	for _, t := range touches {
		cur, ok := byCompany[t.CompanyID]
		if !ok {
			byCompany[t.CompanyID] = &CompanySummary{
				CompanyID:   t.CompanyID,
				CompanyName: t.CompanyName,
				Role:        t.Role,
				MemberSince: t.CreatedAt,
			}
			order = append(order, t.CompanyID)
			continue
		}
		if t.Role.Rank() > cur.Role.Rank() {
			cur.Role = t.Role
		}
		if t.CreatedAt.Before(cur.MemberSince) {
			cur.MemberSince = t.CreatedAt
		}
	}

	out := make([]CompanySummary, 0, len(order))
	for _, id := range order {
		out = append(out, *byCompany[id])
	}
	return out, nil
}

// CompanyMembers consolidates all membership rows of a company into one
// entry per user and paginates the result. Total counts distinct users.
func (s *MembershipService) CompanyMembers(ctx context.Context, companyID uuid.UUID, page, limit int) ([]CompanyMember, int, error) {
	rows, err := s.store.ListCompanyMemberRows(ctx, companyID)
	if err != nil {
		return nil, 0, perrors.NewErrInternalServerError("Failed to list company members", err)
	}

	members := consolidateMembers(rows)
	total := len(members)

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	start := (page - 1) * limit
	if start >= total {
		return []CompanyMember{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return members[start:end], total, nil
}

// consolidateMembers collapses raw rows per user, keeping the highest role
// rank and the earliest created_at, sorted by member-since then email so
// pagination is stable.
func consolidateMembers(rows []MemberRow) []CompanyMember {
	byUser := map[uuid.UUID]*CompanyMember{}
	for _, r := range rows {
		cur, ok := byUser[r.UserID]
		if !ok {
			byUser[r.UserID] = &CompanyMember{
				UserID:      r.UserID,
				Name:        r.UserName,
				Email:       r.UserEmail,
				Role:        r.Role,
				MemberSince: r.CreatedAt,
			}
			continue
		}
		if r.Role.Rank() > cur.Role.Rank() {
			cur.Role = r.Role
		}
		if r.CreatedAt.Before(cur.MemberSince) {
			cur.MemberSince = r.CreatedAt
		}
	}

	out := make([]CompanyMember, 0, len(byUser))
	for _, m := range byUser {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].MemberSince.Equal(out[j].MemberSince) {
			return out[i].MemberSince.Before(out[j].MemberSince)
		}
		return out[i].Email < out[j].Email
	})
	return out
}
