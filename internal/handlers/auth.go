package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/cvhub/apiserver/internal/services"
	"github.com/cvhub/apiserver/internal/store"
	"github.com/cvhub/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// AuthHandler provides authentication and user administration endpoints.
type AuthHandler struct {
	authService *services.AuthService
	userService *services.UserService
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(authService *services.AuthService, userService *services.UserService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		userService: userService,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, authService *services.AuthService, userService *services.UserService) {
	handler := NewAuthHandler(authService, userService)
	requireAuth := RequireAuth(authService)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.Post("/forgot-password", handler.ForgotPassword)
	r.Post("/reset-password", handler.ResetPassword)

	r.With(requireAuth).Post("/logout", handler.Logout)
	r.With(requireAuth).Get("/profile", handler.Profile)

	r.Route("/admin", func(r chi.Router) {
		r.Use(requireAuth, RequireAdmin)
		r.Get("/users", handler.ListUsers)
		r.Put("/users/{userID}/role", handler.SetUserRole)
		r.Put("/users/{userID}/active", handler.SetUserActive)
	})
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

type SetRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// AuthResponse carries the authenticated user and their bearer token.
type AuthResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

// UserListResponse is the paginated admin user listing payload.
type UserListResponse struct {
	Items []types.User `json:"items"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
	Total int          `json:"total"`
}

func decodeValid(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return errors.New("invalid field: " + strings.ToLower(fieldErrs[0].Field()))
		}
		return errors.New("invalid request")
	}
	return nil
}

// Register creates a new account and returns the user with a fresh token.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, token, err := h.authService.Register(r.Context(), req.Email, req.Password, strings.TrimSpace(req.Name))
	if err != nil {
		if errors.Is(err, services.ErrDuplicateEmail) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeAuthError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "registration successful", AuthResponse{Token: token, User: user})
}

// Login verifies credentials and returns the user with a fresh token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, token, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "login successful", AuthResponse{Token: token, User: user})
}

// Logout revokes the session backing the presented token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.authService.Logout(r.Context(), identity); err != nil {
		writeAuthError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "logged out", nil)
}

// Profile returns the current authenticated user.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.userService.GetByID(r.Context(), identity.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeAuthError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "ok", user)
}

// ForgotPassword starts the password reset flow. The response does not
// reveal whether the email belongs to an account.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.authService.ForgotPassword(r.Context(), req.Email); err != nil {
		writeAuthError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "if the account exists, a reset email has been sent", nil)
}

// ResetPassword consumes a reset token and sets a new password.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.authService.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		if errors.Is(err, services.ErrResetTokenInvalid) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeAuthError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "password updated", nil)
}

// ListUsers returns a page of all users. Admin only.
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	users, total, err := h.userService.List(r.Context(), offset, limit)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "ok", UserListResponse{
		Items: users,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

// SetUserRole changes a user's role. Admin only.
func (h *AuthHandler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	var req SetRoleRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := chi.URLParam(r, "userID")
	if err := h.userService.SetRole(r.Context(), userID, req.Role); err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, services.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeAuthError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "role updated", nil)
}

// SetUserActive deactivates or reactivates a user. Admin only.
func (h *AuthHandler) SetUserActive(w http.ResponseWriter, r *http.Request) {
	var req SetActiveRequest
	if err := decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID := chi.URLParam(r, "userID")
	if err := h.userService.SetActive(r.Context(), userID, *req.Active); err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, services.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeAuthError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, "account status updated", nil)
}
