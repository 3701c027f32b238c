package user

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	Name              string     `db:"name" json:"name"`
	Email             string     `db:"email" json:"email"`
	PasswordHash      string     `db:"password_hash" json:"-"`
	IsActive          bool       `db:"is_active" json:"is_active"`
	IsSuperuser       bool       `db:"is_superuser" json:"is_superuser"`
	MustResetPassword bool       `db:"must_reset_password" json:"must_reset_password"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt         *time.Time `db:"deleted_at" json:"-"`
}

// UpdateProfileRequest captures the fields a user may change on their own
// account.
type UpdateProfileRequest struct {
	Name *string `json:"name,omitempty"`
}

// AdminUpdateRequest captures the fields a privileged actor may change on
// another account.
type AdminUpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// ChangePasswordRequest captures a self-service password change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// ListFilter narrows and paginates user listings.
type ListFilter struct {
	Search string
	Page   int
	Limit  int
}

// DisplayNameFromEmail derives a provisional display name from the email's
// local part, for accounts provisioned on someone else's behalf.
func DisplayNameFromEmail(email string) string {
	local := email
	if at := strings.Index(email, "@"); at > 0 {
		local = email[:at]
	}
	return local
}
