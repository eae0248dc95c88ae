package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/cvhub/apiserver/internal/store"
	"github.com/cvhub/apiserver/types"
)

// UserService encapsulates user administration use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id string) (types.User, error) {
	ctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) List(ctx context.Context, offset, limit int) ([]types.User, int, error) {
	ctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, offset, limit)
}

// SetRole changes a user's role to "user" or "admin".
func (s *UserService) SetRole(ctx context.Context, id, role string) error {
	ctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	if role != types.RoleUser && role != types.RoleAdmin {
		return fmt.Errorf("unknown role %q", role)
	}
	return s.repo.UpdateRole(ctx, id, role)
}

// SetActive soft-deactivates or reactivates an account. Deactivated
// users fail both login and token verification; their records are
// never hard-deleted.
func (s *UserService) SetActive(ctx context.Context, id string, active bool) error {
	ctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	if err := s.repo.UpdateActive(ctx, id, active); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}
