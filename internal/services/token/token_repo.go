package token

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type TokenRepo struct {
	db *sqlx.DB
}

func NewTokenRepo(db *sqlx.DB) *TokenRepo {
	return &TokenRepo{db: db}
}

const tokenColumns = `id, user_id, kind, token_hash, expires_at, used_at, created_at`

// IssueExclusive marks every unconsumed token of the same kind for the same
// user as used and inserts the new one, in a single transaction. Tokens of
// other kinds are untouched.
func (r *TokenRepo) IssueExclusive(ctx context.Context, t *AccessToken) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE access_tokens SET used_at = NOW()
		WHERE user_id = $1 AND kind = $2 AND used_at IS NULL
	`, t.UserID, t.Kind)
	if err != nil {
		return fmt.Errorf("failed to invalidate previous tokens: %w", err)
	}

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO access_tokens (id, user_id, kind, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.UserID, t.Kind, t.TokenHash, t.ExpiresAt, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}

	return tx.Commit()
}

func (r *TokenRepo) FindByHash(ctx context.Context, hash string) (*AccessToken, error) {
	query := fmt.Sprintf(`SELECT %s FROM access_tokens WHERE token_hash = $1`, tokenColumns)

	var t AccessToken
	err := r.db.GetContext(ctx, &t, query, hash)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find token: %w", err)
	}
	return &t, nil
}

// ConsumeApply marks the token used and applies the credential change to
// the user row in one transaction. Returns sql.ErrNoRows when the token was
// consumed concurrently.
func (r *TokenRepo) ConsumeApply(ctx context.Context, tokenID, userID uuid.UUID, passwordHash string, name *string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE access_tokens SET used_at = NOW() WHERE id = $1 AND used_at IS NULL
	`, tokenID)
	if err != nil {
		return fmt.Errorf("failed to mark token used: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $1,
		    must_reset_password = FALSE,
		    name = COALESCE($2, name),
		    updated_at = NOW()
		WHERE id = $3 AND deleted_at IS NULL
	`, passwordHash, name, userID)
	if err != nil {
		return fmt.Errorf("failed to apply credentials: %w", err)
	}

	return tx.Commit()
}
