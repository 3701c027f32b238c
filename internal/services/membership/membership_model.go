package membership

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin          Role = "admin"
	RoleWorkspaceAdmin Role = "workspace_admin"
	RoleMember         Role = "member"
)

// Rank orders roles for consolidation. Higher wins.
func (r Role) Rank() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleWorkspaceAdmin:
		return 2
	case RoleMember:
		return 1
	}
	return 0
}

type ResourceType string

const (
	ResourceCompany   ResourceType = "company"
	ResourceWorkspace ResourceType = "workspace"
)

// Scope is the (type, id) pair a membership grants a role over.
type Scope struct {
	Type ResourceType
	ID   uuid.UUID
}

func CompanyScope(id uuid.UUID) Scope {
	return Scope{Type: ResourceCompany, ID: id}
}

func WorkspaceScope(id uuid.UUID) Scope {
	return Scope{Type: ResourceWorkspace, ID: id}
}

func (s Scope) String() string {
	return string(s.Type) + ":" + s.ID.String()
}

// adminRole is the role that counts as "admin" for a scope type.
func (s Scope) adminRole() Role {
	if s.Type == ResourceWorkspace {
		return RoleWorkspaceAdmin
	}
	return RoleAdmin
}

type Membership struct {
	ID           uuid.UUID    `db:"id" json:"id"`
	UserID       uuid.UUID    `db:"user_id" json:"user_id"`
	ResourceType ResourceType `db:"resource_type" json:"resource_type"`
	ResourceID   uuid.UUID    `db:"resource_id" json:"resource_id"`
	Role         Role         `db:"role" json:"role"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
	DeletedAt    *time.Time   `db:"deleted_at" json:"-"`
}

func (m *Membership) Scope() Scope {
	return Scope{Type: m.ResourceType, ID: m.ResourceID}
}

// ErrLastAdmin is returned by the store when a guarded revocation would
// leave a company without any active admin membership.
var ErrLastAdmin = errors.New("membership: last active admin for company")

// WorkspaceRole is one entry of an effective-role report. Role is nil when
// the user holds no membership for that workspace.
type WorkspaceRole struct {
	WorkspaceID  uuid.UUID  `json:"workspace_id"`
	MembershipID *uuid.UUID `json:"membership_id,omitempty"`
	Role         *Role      `json:"role,omitempty"`
}

// EffectiveRoleReport reports the raw membership rows a user holds within a
// company. It never synthesizes hierarchy entries: a company admin shows up
// with a company role and nil workspace roles.
type EffectiveRoleReport struct {
	CompanyRole         *Role           `json:"company_role,omitempty"`
	CompanyMembershipID *uuid.UUID      `json:"company_membership_id,omitempty"`
	WorkspaceRoles      []WorkspaceRole `json:"workspace_roles"`
}

// CompanyTouch is one raw membership row mapped onto the company it belongs
// to, as read for the "my companies" view.
type CompanyTouch struct {
	CompanyID   uuid.UUID `db:"company_id"`
	CompanyName string    `db:"company_name"`
	Role        Role      `db:"role"`
	CreatedAt   time.Time `db:"created_at"`
}

// CompanySummary is a consolidated "my companies" entry.
type CompanySummary struct {
	CompanyID   uuid.UUID `json:"company_id"`
	CompanyName string    `json:"company_name"`
	Role        Role      `json:"role"`
	MemberSince time.Time `json:"member_since"`
}

// MemberRow is one raw membership row joined with its user, as read for the
// "company members" view.
type MemberRow struct {
	MembershipID uuid.UUID `db:"id"`
	UserID       uuid.UUID `db:"user_id"`
	UserName     string    `db:"name"`
	UserEmail    string    `db:"email"`
	Role         Role      `db:"role"`
	CreatedAt    time.Time `db:"created_at"`
}

// CompanyMember is a consolidated per-user entry of the company members view.
type CompanyMember struct {
	UserID      uuid.UUID `json:"user_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	MemberSince time.Time `json:"member_since"`
}
