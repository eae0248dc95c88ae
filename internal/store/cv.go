package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cvhub/apiserver/types"
)

// CVRepository handles persistence for CV documents. The document body
// lives in a single jsonb column; the one-CV-per-user rule is enforced
// by a uniqueness constraint on user_id.
type CVRepository struct {
	db *sql.DB
}

func NewCVRepository(db *sql.DB) *CVRepository {
	return &CVRepository{db: db}
}

func (r *CVRepository) GetByUserID(ctx context.Context, userID string) (types.CV, error) {
	const query = `
		SELECT id, user_id, content, photo_key, created_at, updated_at
		FROM cvs
		WHERE user_id = $1`
	var (
		cv      types.CV
		rawJSON []byte
	)
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&cv.ID,
		&cv.UserID,
		&rawJSON,
		&cv.PhotoKey,
		&cv.CreatedAt,
		&cv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.CV{}, ErrNotFound
		}
		return types.CV{}, err
	}
	if err := json.Unmarshal(rawJSON, &cv.Content); err != nil {
		return types.CV{}, fmt.Errorf("decode cv content: %w", err)
	}
	return cv, nil
}

func (r *CVRepository) Create(ctx context.Context, cv types.CV) (types.CV, error) {
	now := time.Now()
	cv.CreatedAt = now
	cv.UpdatedAt = now

	rawJSON, err := json.Marshal(cv.Content)
	if err != nil {
		return types.CV{}, fmt.Errorf("encode cv content: %w", err)
	}

	const query = `
		INSERT INTO cvs (id, user_id, content, photo_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = r.db.ExecContext(
		ctx,
		query,
		cv.ID,
		cv.UserID,
		rawJSON,
		cv.PhotoKey,
		cv.CreatedAt,
		cv.UpdatedAt,
	)
	if err != nil {
		return types.CV{}, mapConstraintError(err)
	}
	return cv, nil
}

// UpdateContent replaces the CV document of the given user.
func (r *CVRepository) UpdateContent(ctx context.Context, userID string, content types.CVContent) (types.CV, error) {
	rawJSON, err := json.Marshal(content)
	if err != nil {
		return types.CV{}, fmt.Errorf("encode cv content: %w", err)
	}

	const query = `
		UPDATE cvs
		SET content = $1,
			updated_at = $2
		WHERE user_id = $3
		RETURNING id, photo_key, created_at`
	cv := types.CV{
		UserID:    userID,
		Content:   content,
		UpdatedAt: time.Now(),
	}
	err = r.db.QueryRowContext(ctx, query, rawJSON, cv.UpdatedAt, userID).Scan(
		&cv.ID,
		&cv.PhotoKey,
		&cv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.CV{}, ErrNotFound
		}
		return types.CV{}, err
	}
	return cv, nil
}

func (r *CVRepository) UpdatePhotoKey(ctx context.Context, userID, photoKey string) error {
	const query = `
		UPDATE cvs
		SET photo_key = $1,
			updated_at = $2
		WHERE user_id = $3`
	result, err := r.db.ExecContext(ctx, query, photoKey, time.Now(), userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CVRepository) Delete(ctx context.Context, userID string) error {
	const query = `DELETE FROM cvs WHERE user_id = $1`
	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

const cvSummaryColumns = `
		c.id, c.user_id, u.name, u.email, c.content, c.updated_at,
		COUNT(*) OVER() AS total`

// List returns a page of CVs joined with their owners, newest first.
func (r *CVRepository) List(ctx context.Context, offset, limit int) ([]types.CVSummary, int, error) {
	const query = `
		SELECT ` + cvSummaryColumns + `
		FROM cvs c
		JOIN users u ON u.id = c.user_id
		ORDER BY c.updated_at DESC
		OFFSET $1 LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return scanCVSummaries(rows)
}

// Search returns CVs whose document matches every keyword,
// case-insensitively, joined with their owners.
func (r *CVRepository) Search(ctx context.Context, keywords []string, offset, limit int) ([]types.CVSummary, int, error) {
	var (
		conditions []string
		args       []any
	)
	for _, keyword := range keywords {
		args = append(args, "%"+keyword+"%")
		conditions = append(conditions, fmt.Sprintf("c.content::text ILIKE $%d", len(args)))
	}

	query := `
		SELECT ` + cvSummaryColumns + `
		FROM cvs c
		JOIN users u ON u.id = c.user_id`
	if len(conditions) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf("\n\t\tORDER BY c.updated_at DESC\n\t\tOFFSET $%d LIMIT $%d", len(args)+1, len(args)+2)
	args = append(args, offset, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	return scanCVSummaries(rows)
}

func scanCVSummaries(rows *sql.Rows) ([]types.CVSummary, int, error) {
	var (
		summaries []types.CVSummary
		total     int
	)
	for rows.Next() {
		var (
			summary types.CVSummary
			rawJSON []byte
		)
		if err := rows.Scan(
			&summary.ID,
			&summary.UserID,
			&summary.UserName,
			&summary.UserEmail,
			&rawJSON,
			&summary.UpdatedAt,
			&total,
		); err != nil {
			return nil, 0, err
		}
		if err := json.Unmarshal(rawJSON, &summary.Content); err != nil {
			return nil, 0, fmt.Errorf("decode cv content: %w", err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return summaries, total, nil
}
