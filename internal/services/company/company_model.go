package company

import (
	"time"

	"github.com/google/uuid"
	"github.com/mosaichq/backoffice/internal/services/user"
)

type Company struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	TaxID     string     `db:"tax_id" json:"tax_id"`
	IsActive  bool       `db:"is_active" json:"is_active"`
	CreatedBy *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at" json:"-"`
}

// CreateCompanyRequest provisions a company together with its initial
// admin, referenced by email.
type CreateCompanyRequest struct {
	Name       string `json:"name"`
	TaxID      string `json:"tax_id"`
	AdminEmail string `json:"admin_email"`
	AdminName  string `json:"admin_name,omitempty"`
}

// UpdateCompanyRequest captures mutable company fields.
type UpdateCompanyRequest struct {
	Name     *string `json:"name,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// CreateCompanyResult carries the created company and the admin projection.
// The admin's password hash never leaves the service layer.
type CreateCompanyResult struct {
	Company *Company   `json:"company"`
	Admin   *user.User `json:"admin"`
}
