package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/cvhub/apiserver/internal/services"
	"github.com/cvhub/apiserver/internal/store"
	"github.com/cvhub/apiserver/types"
	"github.com/go-chi/chi/v5"
)

const (
	maxMultipartMemory = 8 << 20
	maxPhotoBytes      = 5 << 20
	formFieldPhoto     = "photo"
)

var allowedPhotoTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// CVHandler provides HTTP handlers for CV documents.
type CVHandler struct {
	cvService *services.CVService
}

// NewCVHandler constructs a handler with the provided service.
func NewCVHandler(cvService *services.CVService) *CVHandler {
	return &CVHandler{cvService: cvService}
}

// CVRouter registers CV routes on the given router. Every route is
// protected; per-user routes take the owner-or-admin policy, listing
// and search are admin only.
func CVRouter(r chi.Router, cvService *services.CVService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewCVHandler(cvService)

	r.Use(authMiddleware)

	r.With(RequireAdmin).Get("/", handler.ListCVs)
	r.With(RequireAdmin).Get("/search", handler.SearchCVs)

	r.Route("/{userID}", func(r chi.Router) {
		r.Use(RequireOwnerOrAdmin("userID"))
		r.Get("/", handler.GetCV)
		r.Put("/", handler.UpdateCV)
		r.Delete("/", handler.DeleteCV)
		r.Post("/initialize", handler.InitializeCV)
		r.Post("/photo", handler.UploadPhoto)
		r.Get("/photo", handler.GetPhoto)
	})
}

// CVListResponse is the paginated list response payload.
type CVListResponse struct {
	Items []types.CVSummary `json:"items"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
	Total int               `json:"total"`
}

func (h *CVHandler) GetCV(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	cv, err := h.cvService.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "cv not found")
			return
		}
		writeAuthError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "ok", cv)
}

func (h *CVHandler) UpdateCV(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var content types.CVContent
	if err := json.NewDecoder(r.Body).Decode(&content); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cv, err := h.cvService.Save(r.Context(), userID, content)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "cv not found")
			return
		}
		writeAuthError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "cv updated", cv)
}

func (h *CVHandler) DeleteCV(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := h.cvService.Delete(r.Context(), userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "cv not found")
			return
		}
		writeAuthError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "cv deleted", nil)
}

// InitializeCV creates an empty CV seeded with the owner's identity.
func (h *CVHandler) InitializeCV(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	cv, err := h.cvService.Initialize(r.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCVExists):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		default:
			writeAuthError(w, err)
		}
		return
	}

	writeSuccess(w, http.StatusCreated, "cv initialized", cv)
}

func (h *CVHandler) ListCVs(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.cvService.List(r.Context(), offset, limit)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "ok", CVListResponse{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

// SearchCVs filters CVs by comma-separated keywords; every keyword
// must match.
func (h *CVHandler) SearchCVs(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	keywords := parseKeywords(r.URL.Query().Get("keywords"))
	if len(keywords) == 0 {
		writeError(w, http.StatusBadRequest, "keywords are required")
		return
	}

	items, total, err := h.cvService.Search(r.Context(), keywords, offset, limit)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "ok", CVListResponse{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

// UploadPhoto stores a CV photo in object storage.
func (h *CVHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	photo, contentType, err := parsePhotoFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key, err := h.cvService.SavePhoto(r.Context(), userID, photo.Filename, contentType, photo.Data)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "cv not found")
			return
		}
		writeAuthError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "photo uploaded", map[string]string{"photo_key": key})
}

// GetPhoto streams the stored CV photo.
func (h *CVHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	reader, err := h.cvService.OpenPhoto(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "photo not found")
			return
		}
		writeAuthError(w, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

// PhotoFile represents an uploaded CV photo.
type PhotoFile struct {
	Filename string
	Data     []byte
}

func parseKeywords(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	keywords := make([]string, 0, len(parts))
	for _, part := range parts {
		keyword := strings.TrimSpace(part)
		if keyword != "" {
			keywords = append(keywords, keyword)
		}
	}
	return keywords
}

func parsePhotoFile(r *http.Request) (PhotoFile, string, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return PhotoFile{}, "", errors.New("invalid multipart form")
	}

	photo, err := readPhotoPart(r.MultipartForm)
	if err != nil {
		return PhotoFile{}, "", err
	}

	contentType := http.DetectContentType(photo.Data)
	if _, ok := allowedPhotoTypes[contentType]; !ok {
		return PhotoFile{}, "", errors.New("unsupported photo type")
	}
	return photo, contentType, nil
}

func readPhotoPart(form *multipart.Form) (PhotoFile, error) {
	if form == nil {
		return PhotoFile{}, errors.New("missing form data")
	}

	files := form.File[formFieldPhoto]
	if len(files) == 0 {
		return PhotoFile{}, errors.New("photo file is required")
	}
	if len(files) > 1 {
		return PhotoFile{}, errors.New("only one photo file is allowed")
	}

	fileHeader := files[0]
	file, err := fileHeader.Open()
	if err != nil {
		return PhotoFile{}, fmt.Errorf("failed to read photo file: %w", err)
	}

	data, err := readFileLimited(file, maxPhotoBytes)
	_ = file.Close()
	if err != nil {
		return PhotoFile{}, err
	}

	return PhotoFile{
		Filename: fileHeader.Filename,
		Data:     data,
	}, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}
