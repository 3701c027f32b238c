package user

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/mosaichq/backoffice/internal/perrors"
	"github.com/mosaichq/backoffice/internal/services/membership"
	"golang.org/x/crypto/bcrypt"
)

// Store is the identity data access. *UserRepo is the Postgres
// implementation.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter ListFilter) ([]User, int, error)
}

// MembershipStore is the slice of membership data access the user service
// needs to keep the last-admin invariant when deactivating accounts.
type MembershipStore interface {
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]membership.Membership, error)
	CountOtherActiveAdmins(ctx context.Context, scope membership.Scope, excludingID uuid.UUID) (int, error)
}

type UserService struct {
	store       Store
	memberships MembershipStore
}

func NewUserService(store Store, memberships MembershipStore) *UserService {
	return &UserService{store: store, memberships: memberships}
}

func (s *UserService) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to look up user", err)
	}
	if u == nil || !u.IsActive {
		return nil, perrors.NewErrUnauthorized("Invalid credentials", nil)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, perrors.NewErrUnauthorized("Invalid credentials", nil)
	}

	return u, nil
}

func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to get user", err)
	}
	if u == nil {
		return nil, perrors.NewErrNotFound("User not found", nil)
	}
	return u, nil
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to get user", err)
	}
	return u, nil
}

func (s *UserService) List(ctx context.Context, filter ListFilter) ([]User, int, error) {
	users, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, 0, perrors.NewErrInternalServerError("Failed to list users", err)
	}
	return users, total, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, req *UpdateProfileRequest) (*User, error) {
	u, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil && *req.Name != "" {
		u.Name = *req.Name
	}
	if err := s.store.Update(ctx, u); err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to update user", err)
	}
	return u, nil
}

// AdminUpdate applies privileged edits to another account. Deactivation is
// refused while the target is the sole admin of any company.
func (s *UserService) AdminUpdate(ctx context.Context, actorID, targetID uuid.UUID, req *AdminUpdateRequest) (*User, error) {
	u, err := s.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if req.IsActive != nil && !*req.IsActive {
		if actorID == targetID {
			return nil, perrors.NewErrBadRequest("Operation cannot target your own account", nil)
		}
		if err := s.assertNotSoleAdmin(ctx, targetID); err != nil {
			return nil, err
		}
		u.IsActive = false
	} else if req.IsActive != nil {
		u.IsActive = true
	}

	if req.Name != nil && *req.Name != "" {
		u.Name = *req.Name
	}

	if err := s.store.Update(ctx, u); err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to update user", err)
	}
	return u, nil
}

func (s *UserService) ChangePassword(ctx context.Context, userID uuid.UUID, req *ChangePasswordRequest) error {
	if req.NewPassword == "" || req.NewPassword != req.ConfirmPassword {
		return perrors.NewErrBadRequest("Password confirmation does not match", nil)
	}

	u, err := s.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return perrors.NewErrBadRequest("Current password is incorrect", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return perrors.NewErrInternalServerError("Failed to hash password", err)
	}
	u.PasswordHash = string(hash)
	u.MustResetPassword = false

	if err := s.store.Update(ctx, u); err != nil {
		return perrors.NewErrInternalServerError("Failed to update password", err)
	}
	return nil
}

// Deactivate soft-deletes an account. Self-removal is rejected, and so is
// removing the sole admin of any company.
func (s *UserService) Deactivate(ctx context.Context, actorID, targetID uuid.UUID) error {
	if actorID == targetID {
		return perrors.NewErrBadRequest("Operation cannot target your own account", nil)
	}

	if _, err := s.GetByID(ctx, targetID); err != nil {
		return err
	}
	if err := s.assertNotSoleAdmin(ctx, targetID); err != nil {
		return err
	}

	if err := s.store.SoftDelete(ctx, targetID); err != nil {
		return perrors.NewErrInternalServerError("Failed to deactivate user", err)
	}
	return nil
}

func (s *UserService) assertNotSoleAdmin(ctx context.Context, userID uuid.UUID) error {
	rows, err := s.memberships.ListActiveByUser(ctx, userID)
	if err != nil {
		return perrors.NewErrInternalServerError("Failed to list memberships", err)
	}
	for _, m := range rows {
		if m.ResourceType != membership.ResourceCompany || m.Role != membership.RoleAdmin {
			continue
		}
		others, err := s.memberships.CountOtherActiveAdmins(ctx, m.Scope(), m.ID)
		if err != nil {
			return perrors.NewErrInternalServerError("Failed to count admins", err)
		}
		if others == 0 {
			return perrors.NewErrBadRequest("User is the last admin of a company", nil)
		}
	}
	return nil
}

// NewProvisional builds a user account provisioned on someone else's
// behalf: a display name derived from the email unless one was supplied,
// a random never-disclosed placeholder password, and a pending reset flag.
func NewProvisional(email, name string) (*User, error) {
	if name == "" {
		name = DisplayNameFromEmail(email)
	}

	placeholder := make([]byte, 32)
	if _, err := rand.Read(placeholder); err != nil {
		return nil, fmt.Errorf("failed to generate placeholder password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(placeholder)), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash placeholder password: %w", err)
	}

	return &User{
		Name:              name,
		Email:             email,
		PasswordHash:      string(hash),
		IsActive:          true,
		MustResetPassword: true,
	}, nil
}

// CreateSuperuser provisions a root-authority account, used by the seed
// command.
func (s *UserService) CreateSuperuser(ctx context.Context, name, email, password string) (*User, error) {
	existing, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to look up user", err)
	}
	if existing != nil {
		return nil, perrors.NewErrConflict("A user with this email already exists", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to hash password", err)
	}

	u := &User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		IsActive:     true,
		IsSuperuser:  true,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to create user", err)
	}
	return u, nil
}
