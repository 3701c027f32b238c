package authenticator

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mosaichq/backoffice/internal/config"
	"github.com/mosaichq/backoffice/internal/services/user"
)

// UserClaims is what gets embedded in access tokens and stored on the
// request context for downstream handlers.
type UserClaims struct {
	UserID      uuid.UUID `json:"user_id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	IsSuperuser bool      `json:"is_superuser"`
	jwt.RegisteredClaims
}

// Authenticator signs and verifies first-party access tokens.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
}

func New(conf *config.Config) (*Authenticator, error) {
	if conf.JWT_SECRET == "" {
		return nil, errors.New("JWT_SECRET is not configured")
	}

	return &Authenticator{
		secret: []byte(conf.JWT_SECRET),
		ttl:    24 * time.Hour,
	}, nil
}

// GenerateToken mints an access token for an authenticated user.
func (a *Authenticator) GenerateToken(u *user.User) (string, error) {
	now := time.Now()

	claims := &UserClaims{
		UserID:      u.ID,
		Email:       u.Email,
		Name:        u.Name,
		IsSuperuser: u.IsSuperuser,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// VerifyAccessToken parses and validates an access token and returns the
// embedded claims.
func (a *Authenticator) VerifyAccessToken(tokenString string) (*UserClaims, error) {
	claims := &UserClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid access token")
	}

	return claims, nil
}
