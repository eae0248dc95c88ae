// Package memory provides in-memory implementations of the store
// repositories, used by unit tests and local development. They mirror
// the SQL repositories' semantics, including sentinel errors and the
// email/user_id uniqueness rules.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cvhub/apiserver/internal/store"
	"github.com/cvhub/apiserver/types"
)

// UserRepository is an in-memory store.UserRepository equivalent.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]types.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]types.User)}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = user
	return user, nil
}

func (r *UserRepository) List(ctx context.Context, offset, limit int) ([]types.User, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]types.User, 0, len(r.users))
	for _, user := range r.users {
		all = append(all, user)
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *UserRepository) UpdateRole(ctx context.Context, id, role string) error {
	return r.update(id, func(user *types.User) { user.Role = role })
}

func (r *UserRepository) UpdateActive(ctx context.Context, id string, active bool) error {
	return r.update(id, func(user *types.User) { user.IsActive = active })
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	return r.update(id, func(user *types.User) { user.PasswordHash = passwordHash })
}

func (r *UserRepository) update(id string, mutate func(*types.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	mutate(&user)
	user.UpdatedAt = time.Now()
	r.users[id] = user
	return nil
}

// SessionRepository is an in-memory store.SessionRepository equivalent.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]types.Session
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[string]types.Session)}
}

func (r *SessionRepository) Create(ctx context.Context, session types.Session) (types.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session.CreatedAt = time.Now()
	r.sessions[session.ID] = session
	return session, nil
}

func (r *SessionRepository) GetActive(ctx context.Context, userID, token string, now time.Time) (types.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, session := range r.sessions {
		if session.UserID == userID && session.Token == token && session.ExpiresAt.After(now) {
			return session, nil
		}
	}
	return types.Session{}, store.ErrNotFound
}

func (r *SessionRepository) Delete(ctx context.Context, userID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, session := range r.sessions {
		if session.UserID == userID && session.Token == token {
			delete(r.sessions, id)
		}
	}
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, userID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, session := range r.sessions {
		if session.UserID == userID && !session.ExpiresAt.After(now) {
			delete(r.sessions, id)
		}
	}
	return nil
}

func (r *SessionRepository) DeleteAllForUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, session := range r.sessions {
		if session.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}

// Expire rewinds the expiry of every session backing the given token.
// Test helper for exercising expiry behavior.
func (r *SessionRepository) Expire(token string, expiresAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, session := range r.sessions {
		if session.Token == token {
			session.ExpiresAt = expiresAt
			r.sessions[id] = session
		}
	}
}

// Count reports the number of live session rows for the user.
func (r *SessionRepository) Count(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, session := range r.sessions {
		if session.UserID == userID {
			count++
		}
	}
	return count
}

// ResetTokenRepository is an in-memory store.ResetTokenRepository
// equivalent.
type ResetTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]types.PasswordResetToken
}

func NewResetTokenRepository() *ResetTokenRepository {
	return &ResetTokenRepository{tokens: make(map[string]types.PasswordResetToken)}
}

func (r *ResetTokenRepository) Create(ctx context.Context, token types.PasswordResetToken) (types.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token.CreatedAt = time.Now()
	r.tokens[token.ID] = token
	return token, nil
}

func (r *ResetTokenRepository) Consume(ctx context.Context, token string, now time.Time) (types.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, reset := range r.tokens {
		if reset.Token != token {
			continue
		}
		if reset.ConsumedAt != nil || !reset.ExpiresAt.After(now) {
			return types.PasswordResetToken{}, store.ErrNotFound
		}
		consumedAt := now
		reset.ConsumedAt = &consumedAt
		r.tokens[id] = reset
		return reset, nil
	}
	return types.PasswordResetToken{}, store.ErrNotFound
}

// CVRepository is an in-memory store.CVRepository equivalent.
type CVRepository struct {
	mu  sync.RWMutex
	cvs map[string]types.CV

	users *UserRepository
}

// NewCVRepository constructs a CV repository. The user repository is
// used to fill owner fields in listing and search results, mirroring
// the SQL join.
func NewCVRepository(users *UserRepository) *CVRepository {
	return &CVRepository{
		cvs:   make(map[string]types.CV),
		users: users,
	}
}

func (r *CVRepository) GetByUserID(ctx context.Context, userID string) (types.CV, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cv, ok := r.cvs[userID]
	if !ok {
		return types.CV{}, store.ErrNotFound
	}
	return cv, nil
}

func (r *CVRepository) Create(ctx context.Context, cv types.CV) (types.CV, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.cvs[cv.UserID]; exists {
		return types.CV{}, store.ErrDuplicate
	}
	now := time.Now()
	cv.CreatedAt = now
	cv.UpdatedAt = now
	r.cvs[cv.UserID] = cv
	return cv, nil
}

func (r *CVRepository) UpdateContent(ctx context.Context, userID string, content types.CVContent) (types.CV, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cv, ok := r.cvs[userID]
	if !ok {
		return types.CV{}, store.ErrNotFound
	}
	cv.Content = content
	cv.UpdatedAt = time.Now()
	r.cvs[userID] = cv
	return cv, nil
}

func (r *CVRepository) UpdatePhotoKey(ctx context.Context, userID, photoKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cv, ok := r.cvs[userID]
	if !ok {
		return store.ErrNotFound
	}
	cv.PhotoKey = photoKey
	cv.UpdatedAt = time.Now()
	r.cvs[userID] = cv
	return nil
}

func (r *CVRepository) Delete(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cvs[userID]; !ok {
		return store.ErrNotFound
	}
	delete(r.cvs, userID)
	return nil
}

func (r *CVRepository) List(ctx context.Context, offset, limit int) ([]types.CVSummary, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.page(ctx, r.summaries(ctx), offset, limit)
}

func (r *CVRepository) Search(ctx context.Context, keywords []string, offset, limit int) ([]types.CVSummary, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []types.CVSummary
	for _, summary := range r.summaries(ctx) {
		if matchesKeywords(summary, keywords) {
			matched = append(matched, summary)
		}
	}
	return r.page(ctx, matched, offset, limit)
}

func (r *CVRepository) summaries(ctx context.Context) []types.CVSummary {
	all := make([]types.CVSummary, 0, len(r.cvs))
	for _, cv := range r.cvs {
		summary := types.CVSummary{
			ID:        cv.ID,
			UserID:    cv.UserID,
			Content:   cv.Content,
			UpdatedAt: cv.UpdatedAt,
		}
		if r.users != nil {
			if user, err := r.users.GetByID(ctx, cv.UserID); err == nil {
				summary.UserName = user.Name
				summary.UserEmail = user.Email
			}
		}
		all = append(all, summary)
	}
	return all
}

func (r *CVRepository) page(ctx context.Context, all []types.CVSummary, offset, limit int) ([]types.CVSummary, int, error) {
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func matchesKeywords(summary types.CVSummary, keywords []string) bool {
	text := strings.ToLower(strings.Join([]string{
		summary.Content.Personal.FullName,
		summary.Content.Personal.Title,
		summary.Content.Summary,
		strings.Join(summary.Content.Skills, " "),
	}, " "))
	for _, exp := range summary.Content.Experience {
		text += " " + strings.ToLower(exp.Company+" "+exp.Position+" "+exp.Description)
	}
	for _, edu := range summary.Content.Education {
		text += " " + strings.ToLower(edu.School+" "+edu.Degree+" "+edu.Field)
	}
	for _, keyword := range keywords {
		if !strings.Contains(text, strings.ToLower(keyword)) {
			return false
		}
	}
	return true
}
