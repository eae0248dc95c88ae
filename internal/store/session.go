package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cvhub/apiserver/types"
)

// SessionRepository handles persistence for issued-token sessions.
// A session row is the server-side source of truth for revocation:
// logout deletes the row and the bearer token stops working even
// though its signature is still valid.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session types.Session) (types.Session, error) {
	session.CreatedAt = time.Now()

	const query = `
		INSERT INTO sessions (id, user_id, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		session.ID,
		session.UserID,
		session.Token,
		session.ExpiresAt,
		session.CreatedAt,
	)
	if err != nil {
		return types.Session{}, err
	}
	return session, nil
}

// GetActive returns the session matching (userID, token) whose expiry
// is still in the future. ErrNotFound covers both revoked (deleted)
// and expired rows.
func (r *SessionRepository) GetActive(ctx context.Context, userID, token string, now time.Time) (types.Session, error) {
	const query = `
		SELECT id, user_id, token, expires_at, created_at
		FROM sessions
		WHERE user_id = $1 AND token = $2 AND expires_at > $3`
	var session types.Session
	err := r.db.QueryRowContext(ctx, query, userID, token, now).Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Session{}, ErrNotFound
		}
		return types.Session{}, err
	}
	return session, nil
}

// Delete removes the session matching (userID, token). Deleting zero
// rows is not an error; logout is idempotent.
func (r *SessionRepository) Delete(ctx context.Context, userID, token string) error {
	const query = `DELETE FROM sessions WHERE user_id = $1 AND token = $2`
	_, err := r.db.ExecContext(ctx, query, userID, token)
	return err
}

// DeleteExpired prunes the user's already-expired sessions. Called
// opportunistically on login; correctness never depends on it because
// GetActive checks expiry on every lookup.
func (r *SessionRepository) DeleteExpired(ctx context.Context, userID string, now time.Time) error {
	const query = `DELETE FROM sessions WHERE user_id = $1 AND expires_at <= $2`
	_, err := r.db.ExecContext(ctx, query, userID, now)
	return err
}

// DeleteAllForUser revokes every session of the user, used after a
// password reset.
func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID string) error {
	const query = `DELETE FROM sessions WHERE user_id = $1`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}
