package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cvhub/apiserver/internal/store"
	"github.com/cvhub/apiserver/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultTokenTTL      = 24 * time.Hour
	defaultResetTokenTTL = time.Hour

	// storeOpTimeout bounds every credential/session store operation.
	// Deadline errors surface as infrastructure failures, never as
	// authentication failures.
	storeOpTimeout = 10 * time.Second
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	List(ctx context.Context, offset, limit int) ([]types.User, int, error)
	UpdateRole(ctx context.Context, id, role string) error
	UpdateActive(ctx context.Context, id string, active bool) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}

// SessionRepository defines persistence operations for sessions.
type SessionRepository interface {
	Create(ctx context.Context, session types.Session) (types.Session, error)
	GetActive(ctx context.Context, userID, token string, now time.Time) (types.Session, error)
	Delete(ctx context.Context, userID, token string) error
	DeleteExpired(ctx context.Context, userID string, now time.Time) error
	DeleteAllForUser(ctx context.Context, userID string) error
}

// ResetTokenRepository defines persistence operations for password
// reset tokens.
type ResetTokenRepository interface {
	Create(ctx context.Context, token types.PasswordResetToken) (types.PasswordResetToken, error)
	Consume(ctx context.Context, token string, now time.Time) (types.PasswordResetToken, error)
}

// Notifier publishes outbound account events. Actual delivery (email)
// happens in a separate consumer; publishing is best-effort and never
// fails the request that triggered it.
type Notifier interface {
	UserRegistered(ctx context.Context, email, name string) error
	PasswordResetRequested(ctx context.Context, email, name, token string) error
}

// AuthConfig carries the process-wide signing material and lifetimes.
// It is constructed once at startup and passed in explicitly so tests
// can inject disposable instances.
type AuthConfig struct {
	Secret        string
	TokenTTL      time.Duration
	ResetTokenTTL time.Duration
}

// AuthService implements token issuance, credential verification, the
// session lifecycle, and bearer-token verification.
//
// A bearer token is only valid while BOTH its signature/expiry check
// out AND a matching unexpired session row exists. The session table
// is the authority for revocation: logout deletes the row, and the
// token stops authorizing requests even though its signature would
// verify until exp.
type AuthService struct {
	users    UserRepository
	sessions SessionRepository
	resets   ResetTokenRepository
	notifier Notifier

	secret   []byte
	tokenTTL time.Duration
	resetTTL time.Duration
}

// NewAuthService constructs an AuthService. cfg.Secret must be
// non-empty; callers are expected to fail startup otherwise.
func NewAuthService(
	users UserRepository,
	sessions SessionRepository,
	resets ResetTokenRepository,
	notifier Notifier,
	cfg AuthConfig,
) *AuthService {
	tokenTTL := cfg.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	resetTTL := cfg.ResetTokenTTL
	if resetTTL <= 0 {
		resetTTL = defaultResetTokenTTL
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		resets:   resets,
		notifier: notifier,
		secret:   []byte(cfg.Secret),
		tokenTTL: tokenTTL,
		resetTTL: resetTTL,
	}
}

// Register creates a new account and logs it in.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (types.User, string, error) {
	ctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	email = strings.ToLower(strings.TrimSpace(email))

	// Pre-check is an optimization for a friendly error; the unique
	// constraint on users.email is what actually prevents duplicates
	// under concurrent registration.
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return types.User{}, "", ErrDuplicateEmail
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, "", fmt.Errorf("check existing email: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, types.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Role:         types.RoleUser,
		PasswordHash: string(hashed),
		IsActive:     true,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, "", ErrDuplicateEmail
		}
		return types.User{}, "", fmt.Errorf("create user: %w", err)
	}

	token, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return types.User{}, "", err
	}

	if s.notifier != nil {
		if err := s.notifier.UserRegistered(ctx, user.Email, user.Name); err != nil {
			log.Printf("notify user registered: %v", err)
		}
	}

	return user, token, nil
}

// Login verifies credentials and issues a fresh token/session pair.
// Expired sessions of the caller are pruned opportunistically; multiple
// concurrent sessions per user are allowed.
func (s *AuthService) Login(ctx context.Context, email, password string) (types.User, string, error) {
	ctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, "", ErrInvalidCredentials
		}
		return types.User{}, "", fmt.Errorf("fetch user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, "", ErrInvalidCredentials
	}

	if !user.IsActive {
		return types.User{}, "", ErrAccountDeactivated
	}

	if err := s.sessions.DeleteExpired(ctx, user.ID, time.Now()); err != nil {
		log.Printf("prune expired sessions for %s: %v", user.ID, err)
	}

	token, err := s.issueSession(ctx, user.ID)
	if err != nil {
		return types.User{}, "", err
	}
	return user, token, nil
}

// Logout revokes the session backing the presented token. Deleting an
// already-deleted session is not an error, and the user's other
// sessions stay valid.
func (s *AuthService) Logout(ctx context.Context, identity types.Identity) error {
	ctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	return s.sessions.Delete(ctx, identity.ID, identity.Token)
}

// Verify validates a bearer token end to end and returns the
// authenticated identity. The checks run in a fixed order: signature,
// intrinsic expiry, user existence, account active flag, and finally
// the session row lookup that makes revocation effective.
func (s *AuthService) Verify(ctx context.Context, token string) (types.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	userID, err := s.parseTokenSubject(token)
	if err != nil {
		return types.Identity{}, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Identity{}, ErrUserNotFound
		}
		return types.Identity{}, fmt.Errorf("fetch user: %w", err)
	}

	if !user.IsActive {
		return types.Identity{}, ErrAccountDeactivated
	}

	if _, err := s.sessions.GetActive(ctx, user.ID, token, time.Now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Identity{}, ErrSessionExpired
		}
		return types.Identity{}, fmt.Errorf("fetch session: %w", err)
	}

	return types.Identity{
		ID:       user.ID,
		Email:    user.Email,
		Name:     user.Name,
		Role:     user.Role,
		IsActive: user.IsActive,
		Token:    token,
	}, nil
}

// ForgotPassword generates a single-use reset token and hands it to the
// notifier for delivery. The result is identical whether or not the
// email belongs to an account.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	ctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("fetch user: %w", err)
	}

	reset, err := s.resets.Create(ctx, types.PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().Add(s.resetTTL),
	})
	if err != nil {
		return fmt.Errorf("create reset token: %w", err)
	}

	if s.notifier != nil {
		if err := s.notifier.PasswordResetRequested(ctx, user.Email, user.Name, reset.Token); err != nil {
			log.Printf("notify password reset for %s: %v", user.ID, err)
		}
	}
	return nil
}

// ResetPassword consumes a reset token, replaces the password hash,
// and revokes every session of the affected user.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	ctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	reset, err := s.resets.Consume(ctx, token, time.Now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("consume reset token: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.UpdatePasswordHash(ctx, reset.UserID, string(hashed)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if err := s.sessions.DeleteAllForUser(ctx, reset.UserID); err != nil {
		log.Printf("revoke sessions for %s: %v", reset.UserID, err)
	}
	return nil
}

// issueSession signs a token for the user and inserts the session row
// that backs it. The two carry the same expiry; a token without its
// session row never verifies.
func (s *AuthService) issueSession(ctx context.Context, userID string) (string, error) {
	now := time.Now()
	expiresAt := now.Add(s.tokenTTL)

	token, err := s.issueToken(userID, now, expiresAt)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	if _, err := s.sessions.Create(ctx, types.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
	}); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return token, nil
}

func (s *AuthService) issueToken(userID string, issuedAt, expiresAt time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *AuthService) parseTokenSubject(tokenString string) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
