package authenticator

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaichq/backoffice/internal/config"
	"github.com/mosaichq/backoffice/internal/services/user"
)

func TestTokenRoundTrip(t *testing.T) {
	auth, err := New(&config.Config{JWT_SECRET: "test-secret"})
	require.NoError(t, err)

	u := &user.User{
		ID:          uuid.New(),
		Email:       "root@backoffice.test",
		Name:        "Root",
		IsSuperuser: true,
	}

	raw, err := auth.GenerateToken(u)
	require.NoError(t, err)

	claims, err := auth.VerifyAccessToken(raw)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, u.Email, claims.Email)
	assert.True(t, claims.IsSuperuser)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signer, err := New(&config.Config{JWT_SECRET: "secret-one"})
	require.NoError(t, err)
	verifier, err := New(&config.Config{JWT_SECRET: "secret-two"})
	require.NoError(t, err)

	raw, err := signer.GenerateToken(&user.User{ID: uuid.New()})
	require.NoError(t, err)

	_, err = verifier.VerifyAccessToken(raw)
	assert.Error(t, err)
}

func TestNewRequiresSecret(t *testing.T) {
	_, err := New(&config.Config{})
	assert.Error(t, err)
}
