package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mosaichq/backoffice/internal/perrors"
	"github.com/mosaichq/backoffice/internal/services/user"
	"golang.org/x/crypto/bcrypt"
)

// Store is the token data access. *TokenRepo is the Postgres
// implementation.
type Store interface {
	IssueExclusive(ctx context.Context, t *AccessToken) error
	FindByHash(ctx context.Context, hash string) (*AccessToken, error)
	ConsumeApply(ctx context.Context, tokenID, userID uuid.UUID, passwordHash string, name *string) error
}

// UserStore is the slice of identity access the token service needs.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

type TokenService struct {
	store Store
	users UserStore

	passwordResetTTL time.Duration
	firstAccessTTL   time.Duration
}

func NewTokenService(store Store, users UserStore, passwordResetTTL, firstAccessTTL time.Duration) *TokenService {
	return &TokenService{
		store:            store,
		users:            users,
		passwordResetTTL: passwordResetTTL,
		firstAccessTTL:   firstAccessTTL,
	}
}

// HashToken is the at-rest digest of a raw token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (s *TokenService) ttl(kind Kind) time.Duration {
	if kind == KindFirstAccess {
		return s.firstAccessTTL
	}
	return s.passwordResetTTL
}

// Issue invalidates every unconsumed token of the same kind for the user
// and returns a fresh raw token. Only its hash is persisted.
func (s *TokenService) Issue(ctx context.Context, userID uuid.UUID, kind Kind) (string, error) {
	raw, err := generateToken()
	if err != nil {
		return "", perrors.NewErrInternalServerError("Failed to generate token", err)
	}

	t := &AccessToken{
		UserID:    userID,
		Kind:      kind,
		TokenHash: HashToken(raw),
		ExpiresAt: time.Now().UTC().Add(s.ttl(kind)),
	}
	if err := s.store.IssueExclusive(ctx, t); err != nil {
		return "", perrors.NewErrInternalServerError("Failed to issue token", err)
	}
	return raw, nil
}

// Consume validates the raw token against the expected kind and atomically
// marks it used while applying the new credential material. Every failure
// mode surfaces as the same BadRequest so callers cannot probe token state.
func (s *TokenService) Consume(ctx context.Context, kind Kind, req *ConsumeRequest) (*user.User, error) {
	if req.Password == "" || req.Password != req.ConfirmPassword {
		return nil, perrors.NewErrBadRequest("Password confirmation does not match", nil)
	}

	t, err := s.store.FindByHash(ctx, HashToken(req.Token))
	if err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to look up token", err)
	}
	if t == nil || t.Kind != kind || !t.Usable(time.Now().UTC()) {
		return nil, perrors.NewErrBadRequest("Invalid or expired token", nil)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to hash password", err)
	}

	var name *string
	if kind == KindFirstAccess && req.Name != nil && *req.Name != "" {
		name = req.Name
	}

	if err := s.store.ConsumeApply(ctx, t.ID, t.UserID, string(hash), name); err != nil {
		return nil, perrors.NewErrBadRequest("Invalid or expired token", err)
	}

	u, err := s.users.GetByID(ctx, t.UserID)
	if err != nil {
		return nil, perrors.NewErrInternalServerError("Failed to load user", err)
	}
	if u == nil {
		return nil, perrors.NewErrNotFound("User not found", nil)
	}
	return u, nil
}

// GetOrRegenerate reissues a first-access style token for an account that
// still has a pending credential reset. Accounts that already completed
// onboarding get no token and no mutation.
func (s *TokenService) GetOrRegenerate(ctx context.Context, userID uuid.UUID, kind Kind) (string, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", perrors.NewErrInternalServerError("Failed to load user", err)
	}
	if u == nil {
		return "", perrors.NewErrNotFound("User not found", nil)
	}
	if !u.MustResetPassword {
		return "", nil
	}
	return s.Issue(ctx, userID, kind)
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
