package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/cvhub/apiserver/internal/storage"
	"github.com/cvhub/apiserver/internal/store"
	"github.com/cvhub/apiserver/types"
	"github.com/google/uuid"
)

// CVRepository defines persistence operations for CV documents.
type CVRepository interface {
	GetByUserID(ctx context.Context, userID string) (types.CV, error)
	Create(ctx context.Context, cv types.CV) (types.CV, error)
	UpdateContent(ctx context.Context, userID string, content types.CVContent) (types.CV, error)
	UpdatePhotoKey(ctx context.Context, userID, photoKey string) error
	Delete(ctx context.Context, userID string) error
	List(ctx context.Context, offset, limit int) ([]types.CVSummary, int, error)
	Search(ctx context.Context, keywords []string, offset, limit int) ([]types.CVSummary, int, error)
}

// CVService encapsulates CV use-cases, including photo storage.
type CVService struct {
	repo    CVRepository
	users   UserRepository
	storage *storage.Storage
}

func NewCVService(repo CVRepository, users UserRepository, storage *storage.Storage) *CVService {
	return &CVService{
		repo:    repo,
		users:   users,
		storage: storage,
	}
}

func (s *CVService) Get(ctx context.Context, userID string) (types.CV, error) {
	ctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()
	return s.repo.GetByUserID(ctx, userID)
}

// Save replaces the CV document of the given user.
func (s *CVService) Save(ctx context.Context, userID string, content types.CVContent) (types.CV, error) {
	ctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()
	return s.repo.UpdateContent(ctx, userID, content)
}

func (s *CVService) Delete(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	cv, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID); err != nil {
		return err
	}
	if cv.PhotoKey != "" && s.storage != nil {
		// Best-effort: an orphaned photo object is harmless.
		_ = s.storage.Delete(ctx, cv.PhotoKey)
	}
	return nil
}

// Initialize creates an empty CV for the user, seeded with their name
// and email. Fails with ErrCVExists when the user already has one.
func (s *CVService) Initialize(ctx context.Context, userID string) (types.CV, error) {
	ctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return types.CV{}, err
	}

	cv, err := s.repo.Create(ctx, types.CV{
		ID:     uuid.NewString(),
		UserID: user.ID,
		Content: types.CVContent{
			Personal: types.PersonalInfo{
				FullName: user.Name,
				Email:    user.Email,
			},
		},
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.CV{}, ErrCVExists
		}
		return types.CV{}, err
	}
	return cv, nil
}

func (s *CVService) List(ctx context.Context, offset, limit int) ([]types.CVSummary, int, error) {
	ctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()
	return s.repo.List(ctx, offset, limit)
}

// Search matches every keyword against the CV document text,
// case-insensitively.
func (s *CVService) Search(ctx context.Context, keywords []string, offset, limit int) ([]types.CVSummary, int, error) {
	ctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()
	return s.repo.Search(ctx, keywords, offset, limit)
}

// SavePhoto uploads a CV photo to object storage and records its key.
// The previous photo object, if any, is replaced in place because the
// key is derived from the user id.
func (s *CVService) SavePhoto(ctx context.Context, userID, filename, contentType string, data []byte) (string, error) {
	if s.storage == nil {
		return "", errors.New("photo storage is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	if _, err := s.repo.GetByUserID(ctx, userID); err != nil {
		return "", err
	}

	key := photoKey(userID, filename)
	if err := s.storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", fmt.Errorf("upload photo: %w", err)
	}
	if err := s.repo.UpdatePhotoKey(ctx, userID, key); err != nil {
		return "", err
	}
	return key, nil
}

// OpenPhoto streams the stored CV photo of the user.
func (s *CVService) OpenPhoto(ctx context.Context, userID string) (io.ReadCloser, error) {
	if s.storage == nil {
		return nil, errors.New("photo storage is not configured")
	}

	cv, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cv.PhotoKey == "" {
		return nil, store.ErrNotFound
	}
	return s.storage.Get(ctx, cv.PhotoKey)
}

func photoKey(userID, filename string) string {
	ext := path.Ext(filename)
	if ext == "" {
		ext = ".jpg"
	}
	return "photos/" + userID + ext
}
