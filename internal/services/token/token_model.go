package token

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	// KindPasswordReset is the short-lived, user-initiated "forgot
	// password" token.
	KindPasswordReset Kind = "password_reset"
	// KindFirstAccess is the long-lived onboarding token issued when an
	// account is created by someone other than its owner.
	KindFirstAccess Kind = "first_access"
)

// AccessToken stores only a one-way hash of the issued secret; the raw
// value is returned once to the caller and never persisted.
type AccessToken struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    uuid.UUID  `db:"user_id" json:"user_id"`
	Kind      Kind       `db:"kind" json:"kind"`
	TokenHash string     `db:"token_hash" json:"-"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	UsedAt    *time.Time `db:"used_at" json:"used_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Usable reports whether the token can still be consumed at the given
// instant.
func (t *AccessToken) Usable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}

// ConsumeRequest carries the credential material applied when a token is
// consumed. Name is only honored for first-access flows.
type ConsumeRequest struct {
	Token           string  `json:"token"`
	Password        string  `json:"password"`
	ConfirmPassword string  `json:"confirm_password"`
	Name            *string `json:"name,omitempty"`
}
