package company

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mosaichq/backoffice/internal/services/membership"
	"github.com/mosaichq/backoffice/internal/services/user"
)

type CompanyRepo struct {
	db *sqlx.DB
}

func NewCompanyRepo(db *sqlx.DB) *CompanyRepo {
	return &CompanyRepo{db: db}
}

const companyColumns = `id, name, tax_id, is_active, created_by, created_at, updated_at, deleted_at`

func (r *CompanyRepo) GetByID(ctx context.Context, id uuid.UUID) (*Company, error) {
	query := fmt.Sprintf(`SELECT %s FROM companies WHERE id = $1 AND deleted_at IS NULL`, companyColumns)

	var c Company
	err := r.db.GetContext(ctx, &c, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &c, nil
}

func (r *CompanyRepo) GetByTaxID(ctx context.Context, taxID string) (*Company, error) {
	query := fmt.Sprintf(`SELECT %s FROM companies WHERE tax_id = $1 AND deleted_at IS NULL`, companyColumns)

	var c Company
	err := r.db.GetContext(ctx, &c, query, taxID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get company by tax id: %w", err)
	}
	return &c, nil
}

func (r *CompanyRepo) List(ctx context.Context, page, limit int) ([]Company, int, error) {
	var total int
	err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM companies WHERE deleted_at IS NULL`)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count companies: %w", err)
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	query := fmt.Sprintf(`
		SELECT %s FROM companies WHERE deleted_at IS NULL
		ORDER BY created_at ASC
		LIMIT %d OFFSET %d
	`, companyColumns, limit, (page-1)*limit)

	var companies []Company
	err = r.db.SelectContext(ctx, &companies, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list companies: %w", err)
	}
	return companies, total, nil
}

// CreateWithAdmin lands the company, its bootstrap admin membership and,
// on the new-identity branch, the admin's user row in one transaction. A
// company without its initial admin is an invalid state, so either all
// rows commit or none do.
func (r *CompanyRepo) CreateWithAdmin(ctx context.Context, c *Company, newAdmin *user.User, memberships []*membership.Membership) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	if newAdmin != nil {
		newAdmin.CreatedAt = now
		newAdmin.UpdatedAt = now
		_, err = tx.ExecContext(ctx, `
			INSERT INTO users (id, name, email, password_hash, is_active, is_superuser, must_reset_password, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, newAdmin.ID, newAdmin.Name, newAdmin.Email, newAdmin.PasswordHash, newAdmin.IsActive, newAdmin.IsSuperuser, newAdmin.MustResetPassword, newAdmin.CreatedAt, newAdmin.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}
	}

	c.CreatedAt = now
	c.UpdatedAt = now
	_, err = tx.ExecContext(ctx, `
		INSERT INTO companies (id, name, tax_id, is_active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.Name, c.TaxID, c.IsActive, c.CreatedBy, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}

	for _, m := range memberships {
		m.CreatedAt = now
		m.UpdatedAt = now
		_, err = tx.ExecContext(ctx, `
			INSERT INTO memberships (id, user_id, resource_type, resource_id, role, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, m.ID, m.UserID, m.ResourceType, m.ResourceID, m.Role, m.CreatedAt, m.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create membership: %w", err)
		}
	}

	return tx.Commit()
}

func (r *CompanyRepo) Update(ctx context.Context, c *Company) error {
	query := `
		UPDATE companies SET name = $1, is_active = $2, updated_at = NOW()
		WHERE id = $3 AND deleted_at IS NULL
	`

	res, err := r.db.ExecContext(ctx, query, c.Name, c.IsActive, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update company: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *CompanyRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE companies SET deleted_at = NOW(), is_active = FALSE, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete company: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
