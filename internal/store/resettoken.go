package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cvhub/apiserver/types"
)

// ResetTokenRepository handles persistence for password reset tokens.
type ResetTokenRepository struct {
	db *sql.DB
}

func NewResetTokenRepository(db *sql.DB) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

func (r *ResetTokenRepository) Create(ctx context.Context, token types.PasswordResetToken) (types.PasswordResetToken, error) {
	token.CreatedAt = time.Now()

	const query = `
		INSERT INTO password_reset_tokens (id, user_id, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		token.ID,
		token.UserID,
		token.Token,
		token.ExpiresAt,
		token.CreatedAt,
	)
	if err != nil {
		return types.PasswordResetToken{}, err
	}
	return token, nil
}

// Consume atomically marks an unconsumed, unexpired token as used and
// returns it. ErrNotFound means the token is unknown, expired, or was
// already consumed; the caller cannot tell which, and should not.
func (r *ResetTokenRepository) Consume(ctx context.Context, token string, now time.Time) (types.PasswordResetToken, error) {
	const query = `
		UPDATE password_reset_tokens
		SET consumed_at = $1
		WHERE token = $2 AND consumed_at IS NULL AND expires_at > $1
		RETURNING id, user_id, token, expires_at, consumed_at, created_at`
	var reset types.PasswordResetToken
	err := r.db.QueryRowContext(ctx, query, now, token).Scan(
		&reset.ID,
		&reset.UserID,
		&reset.Token,
		&reset.ExpiresAt,
		&reset.ConsumedAt,
		&reset.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.PasswordResetToken{}, ErrNotFound
		}
		return types.PasswordResetToken{}, err
	}
	return reset, nil
}
