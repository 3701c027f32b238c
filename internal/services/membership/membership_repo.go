package membership

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type MembershipRepo struct {
	db *sqlx.DB
}

func NewMembershipRepo(db *sqlx.DB) *MembershipRepo {
	return &MembershipRepo{db: db}
}

const membershipColumns = `id, user_id, resource_type, resource_id, role, created_at, updated_at, deleted_at`

func (r *MembershipRepo) GetByID(ctx context.Context, id uuid.UUID) (*Membership, error) {
	query := fmt.Sprintf(`SELECT %s FROM memberships WHERE id = $1 AND deleted_at IS NULL`, membershipColumns)

	var m Membership
	err := r.db.GetContext(ctx, &m, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}

func (r *MembershipRepo) FindActive(ctx context.Context, userID uuid.UUID, scope Scope) (*Membership, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM memberships
		WHERE user_id = $1 AND resource_type = $2 AND resource_id = $3 AND deleted_at IS NULL
	`, membershipColumns)

	var m Membership
	err := r.db.GetContext(ctx, &m, query, userID, scope.Type, scope.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find membership: %w", err)
	}
	return &m, nil
}

func (r *MembershipRepo) FindAnyInCompany(ctx context.Context, userID, companyID uuid.UUID) (*Membership, error) {
	query := fmt.Sprintf(`
		SELECT m.%s FROM memberships m
		WHERE m.user_id = ? AND %s
		ORDER BY m.created_at ASC
		LIMIT 1
	`, membershipColumnsAliased, companyRowsRaw)

	var m Membership
	err := r.db.GetContext(ctx, &m, r.db.Rebind(query), userID, companyID, companyID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find membership in company: %w", err)
	}
	return &m, nil
}

func (r *MembershipRepo) ListByUserCompany(ctx context.Context, userID, companyID uuid.UUID) ([]Membership, error) {
	query := fmt.Sprintf(`
		SELECT m.%s FROM memberships m
		WHERE m.user_id = ? AND %s
		ORDER BY m.created_at ASC
	`, membershipColumnsAliased, companyRowsRaw)

	var out []Membership
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(query), userID, companyID, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	return out, nil
}

func (r *MembershipRepo) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]Membership, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM memberships
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC
	`, membershipColumns)

	var out []Membership
	err := r.db.SelectContext(ctx, &out, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user memberships: %w", err)
	}
	return out, nil
}

func (r *MembershipRepo) CountOtherActiveAdmins(ctx context.Context, scope Scope, excludingID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM memberships
		WHERE resource_type = $1 AND resource_id = $2 AND role = $3
		  AND id <> $4 AND deleted_at IS NULL
	`

	var count int
	err := r.db.GetContext(ctx, &count, query, scope.Type, scope.ID, scope.adminRole(), excludingID)
	if err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return count, nil
}

// Create inserts a membership row. When companyTie is non-nil the implicit
// company member row lands in the same transaction, so a promotion never
// leaves the user half-attached.
func (r *MembershipRepo) Create(ctx context.Context, m *Membership, companyTie *Membership) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertMembershipTx(ctx, tx, m); err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}
	if companyTie != nil {
		if err := insertMembershipTx(ctx, tx, companyTie); err != nil {
			return fmt.Errorf("failed to create company tie: %w", err)
		}
	}
	return tx.Commit()
}

// UpdateRole changes a row's role, inserting the implicit company tie in
// the same transaction when one is needed.
func (r *MembershipRepo) UpdateRole(ctx context.Context, id uuid.UUID, role Role, companyTie *Membership) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE memberships SET role = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL`, role, id)
	if err != nil {
		return fmt.Errorf("failed to update membership role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	if companyTie != nil {
		if err := insertMembershipTx(ctx, tx, companyTie); err != nil {
			return fmt.Errorf("failed to create company tie: %w", err)
		}
	}
	return tx.Commit()
}

// SoftDeleteAll revokes a set of membership rows in one transaction. Every
// id must match a live row or the whole batch rolls back.
func (r *MembershipRepo) SoftDeleteAll(ctx context.Context, ids []uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `UPDATE memberships SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
		if err != nil {
			return fmt.Errorf("failed to revoke membership: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
	}
	return tx.Commit()
}

func insertMembershipTx(ctx context.Context, tx *sqlx.Tx, m *Membership) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	_, err := tx.ExecContext(ctx, `
		INSERT INTO memberships (id, user_id, resource_type, resource_id, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.ID, m.UserID, m.ResourceType, m.ResourceID, m.Role, m.CreatedAt, m.UpdatedAt)
	return err
}

// SoftDeleteAdminGuarded revokes a company-scope admin membership while
// holding row locks on every active admin row of the same company, so two
// concurrent revocations cannot both observe "another admin remains".
// Returns ErrLastAdmin without writing when no other admin would be left.
func (r *MembershipRepo) SoftDeleteAdminGuarded(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var target Membership
	err = tx.GetContext(ctx, &target, fmt.Sprintf(`
		SELECT %s FROM memberships WHERE id = $1 AND deleted_at IS NULL FOR UPDATE
	`, membershipColumns), id)
	if err != nil {
		if err == sql.ErrNoRows {
			return sql.ErrNoRows
		}
		return fmt.Errorf("failed to lock membership: %w", err)
	}

	var others int
	err = tx.GetContext(ctx, &others, `
		SELECT COUNT(*) FROM (
			SELECT id FROM memberships
			WHERE resource_type = 'company' AND resource_id = $1 AND role = 'admin'
			  AND id <> $2 AND deleted_at IS NULL
			FOR UPDATE
		) locked
	`, target.ResourceID, target.ID)
	if err != nil {
		return fmt.Errorf("failed to count remaining admins: %w", err)
	}
	if others == 0 {
		return ErrLastAdmin
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE memberships SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1
	`, target.ID)
	if err != nil {
		return fmt.Errorf("failed to revoke membership: %w", err)
	}

	return tx.Commit()
}

func (r *MembershipRepo) CompanyWorkspaceIDs(ctx context.Context, companyID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT id FROM workspaces WHERE company_id = $1 AND deleted_at IS NULL ORDER BY created_at ASC`

	var out []uuid.UUID
	err := r.db.SelectContext(ctx, &out, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list company workspaces: %w", err)
	}
	return out, nil
}

func (r *MembershipRepo) ListCompaniesTouched(ctx context.Context, userID uuid.UUID) ([]CompanyTouch, error) {
	query := `
		SELECT c.id AS company_id, c.name AS company_name, m.role, m.created_at
		FROM memberships m
		LEFT JOIN workspaces w ON m.resource_type = 'workspace' AND w.id = m.resource_id AND w.deleted_at IS NULL
		JOIN companies c ON c.id = COALESCE(w.company_id, m.resource_id)
		WHERE m.user_id = $1 AND m.deleted_at IS NULL AND c.deleted_at IS NULL
		  AND (m.resource_type = 'company' OR w.id IS NOT NULL)
		ORDER BY m.created_at ASC
	`

	var out []CompanyTouch
	err := r.db.SelectContext(ctx, &out, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies for user: %w", err)
	}
	return out, nil
}

func (r *MembershipRepo) ListCompanyMemberRows(ctx context.Context, companyID uuid.UUID) ([]MemberRow, error) {
	query := fmt.Sprintf(`
		SELECT m.id, m.user_id, u.name, u.email, m.role, m.created_at
		FROM memberships m
		JOIN users u ON u.id = m.user_id AND u.deleted_at IS NULL
		WHERE %s
		ORDER BY m.created_at ASC
	`, companyRowsRaw)

	var out []MemberRow
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(query), companyID, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list company members: %w", err)
	}
	return out, nil
}

const membershipColumnsAliased = `id, m.user_id, m.resource_type, m.resource_id, m.role, m.created_at, m.updated_at, m.deleted_at`

// companyRowsRaw matches all active membership rows that fall inside a
// company: the company-scope rows plus the rows of its live workspaces.
// Callers pass the company id twice.
const companyRowsRaw = `
	m.deleted_at IS NULL
	AND (
		(m.resource_type = 'company' AND m.resource_id = ?)
		OR (m.resource_type = 'workspace' AND m.resource_id IN (
			SELECT id FROM workspaces WHERE company_id = ? AND deleted_at IS NULL
		))
	)
`
