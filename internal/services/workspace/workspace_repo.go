package workspace

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mosaichq/backoffice/internal/services/membership"
	"github.com/mosaichq/backoffice/internal/services/user"
)

type WorkspaceRepo struct {
	db *sqlx.DB
}

func NewWorkspaceRepo(db *sqlx.DB) *WorkspaceRepo {
	return &WorkspaceRepo{db: db}
}

const workspaceColumns = `id, company_id, name, description, is_active, created_by, created_at, updated_at, deleted_at`

func (r *WorkspaceRepo) GetByID(ctx context.Context, id uuid.UUID) (*Workspace, error) {
	var w Workspace
	err := r.db.GetContext(ctx, &w, `
		SELECT `+workspaceColumns+`
		FROM workspaces
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WorkspaceRepo) ListByCompany(ctx context.Context, companyID uuid.UUID, page, limit int) ([]Workspace, int, error) {
	var total int
	err := r.db.GetContext(ctx, &total, `
		SELECT COUNT(*)
		FROM workspaces
		WHERE company_id = $1 AND deleted_at IS NULL
	`, companyID)
	if err != nil {
		return nil, 0, err
	}

	workspaces := []Workspace{}
	err = r.db.SelectContext(ctx, &workspaces, `
		SELECT `+workspaceColumns+`
		FROM workspaces
		WHERE company_id = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`, companyID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	return workspaces, total, nil
}

// CreateWithAdmin inserts the workspace, the optional new admin account
// and the admin's membership rows in a single transaction. newAdmin is
// nil when the admin email matched an existing account.
func (r *WorkspaceRepo) CreateWithAdmin(ctx context.Context, w *Workspace, newAdmin *user.User, memberships []*membership.Membership) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	if newAdmin != nil {
		newAdmin.CreatedAt = now
		newAdmin.UpdatedAt = now
		_, err = tx.ExecContext(ctx, `
			INSERT INTO users (id, email, name, password_hash, is_active, is_superuser, must_reset_password, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, newAdmin.ID, newAdmin.Email, newAdmin.Name, newAdmin.PasswordHash, newAdmin.IsActive, newAdmin.IsSuperuser, newAdmin.MustResetPassword, now, now)
		if err != nil {
			return err
		}
	}

	w.CreatedAt = now
	w.UpdatedAt = now
	_, err = tx.ExecContext(ctx, `
		INSERT INTO workspaces (id, company_id, name, description, is_active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, w.ID, w.CompanyID, w.Name, w.Description, w.IsActive, w.CreatedBy, now, now)
	if err != nil {
		return err
	}

	for _, m := range memberships {
		m.CreatedAt = now
		m.UpdatedAt = now
		_, err = tx.ExecContext(ctx, `
			INSERT INTO memberships (id, user_id, resource_type, resource_id, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, m.ID, m.UserID, m.ResourceType, m.ResourceID, m.Role, now, now)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *WorkspaceRepo) Update(ctx context.Context, w *Workspace) error {
	w.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE workspaces
		SET name = $2, description = $3, is_active = $4, updated_at = $5
		WHERE id = $1 AND deleted_at IS NULL
	`, w.ID, w.Name, w.Description, w.IsActive, w.UpdatedAt)
	return err
}

func (r *WorkspaceRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE workspaces
		SET deleted_at = $2, is_active = FALSE, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, id, now)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
