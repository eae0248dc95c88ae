package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cvhub/apiserver/internal/services"
	"github.com/cvhub/apiserver/internal/store/memory"
	"github.com/cvhub/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEnv wires the real routers over in-memory repositories.
type testEnv struct {
	router   *chi.Mux
	users    *memory.UserRepository
	sessions *memory.SessionRepository
	notifier *captureNotifier
}

// captureNotifier records reset tokens so tests can complete the flow.
type captureNotifier struct {
	resetTokens map[string]string
}

func (n *captureNotifier) UserRegistered(ctx context.Context, email, name string) error {
	return nil
}

func (n *captureNotifier) PasswordResetRequested(ctx context.Context, email, name, token string) error {
	n.resetTokens[email] = token
	return nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := memory.NewUserRepository()
	sessions := memory.NewSessionRepository()
	resets := memory.NewResetTokenRepository()
	cvs := memory.NewCVRepository(users)
	notifier := &captureNotifier{resetTokens: make(map[string]string)}

	authService := services.NewAuthService(users, sessions, resets, notifier, services.AuthConfig{
		Secret: "handler-test-secret",
	})
	userService := services.NewUserService(users)
	cvService := services.NewCVService(cvs, users, nil)

	router := chi.NewRouter()
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, authService, userService)
	})
	router.Route("/cv", func(r chi.Router) {
		CVRouter(r, cvService, RequireAuth(authService))
	})

	return &testEnv{
		router:   router,
		users:    users,
		sessions: sessions,
		notifier: notifier,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var resp Response
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

// register creates an account through the API and returns its id and token.
func (e *testEnv) register(t *testing.T, email, password, name string) (string, string) {
	t.Helper()

	rec, resp := e.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    email,
		"password": password,
		"name":     name,
	})
	require.Equal(t, http.StatusCreated, rec.Code, resp.Message)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	token, _ := data["token"].(string)
	user, _ := data["user"].(map[string]any)
	id, _ := user["id"].(string)
	require.NotEmpty(t, token)
	require.NotEmpty(t, id)
	return id, token
}

// registerAdmin registers an account and promotes it to admin. Role is
// read fresh on every verification, so no re-login is needed.
func (e *testEnv) registerAdmin(t *testing.T, email string) (string, string) {
	t.Helper()
	id, token := e.register(t, email, "admin-password", "Admin")
	require.NoError(t, e.users.UpdateRole(context.Background(), id, types.RoleAdmin))
	return id, token
}

func TestRegisterAndProfile(t *testing.T) {
	env := newTestEnv(t)

	rec, resp := env.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    "alice@example.com",
		"password": "password1",
		"name":     "Alice",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "registration successful", resp.Message)

	data := resp.Data.(map[string]any)
	token := data["token"].(string)
	user := data["user"].(map[string]any)
	assert.Equal(t, "alice@example.com", user["email"])
	assert.Equal(t, "user", user["role"])
	// The password hash never leaves the server.
	assert.NotContains(t, user, "password_hash")

	rec, resp = env.do(t, http.MethodGet, "/auth/profile", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	profile := resp.Data.(map[string]any)
	assert.Equal(t, "alice@example.com", profile["email"])
	assert.NotContains(t, profile, "password_hash")
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		body map[string]string
	}{
		{"bad email", map[string]string{"email": "not-an-email", "password": "password1", "name": "A"}},
		{"short password", map[string]string{"email": "a@example.com", "password": "123", "name": "A"}},
		{"missing name", map[string]string{"email": "a@example.com", "password": "password1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, resp := env.do(t, http.MethodPost, "/auth/register", "", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, resp.Success)
		})
	}
}

func TestRegisterDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com", "password1", "Alice")

	rec, resp := env.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    "alice@example.com",
		"password": "password2",
		"name":     "Alice Again",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email already registered", resp.Message)
}

func TestLoginFailureMessagesMatch(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com", "password1", "Alice")

	rec1, resp1 := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "nobody@example.com",
		"password": "password1",
	})
	rec2, resp2 := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong-password",
	})

	assert.Equal(t, http.StatusUnauthorized, rec1.Code)
	assert.Equal(t, http.StatusUnauthorized, rec2.Code)
	// Identical responses keep account existence unguessable.
	assert.Equal(t, resp1.Message, resp2.Message)
}

func TestLoginDeactivated(t *testing.T) {
	env := newTestEnv(t)
	id, _ := env.register(t, "alice@example.com", "password1", "Alice")
	require.NoError(t, env.users.UpdateActive(context.Background(), id, false))

	rec, resp := env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "password1",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "account is deactivated", resp.Message)
}

func TestLogoutRevokesToken(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.register(t, "alice@example.com", "password1", "Alice")

	rec, resp := env.do(t, http.MethodPost, "/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "logged out", resp.Message)

	// The token no longer authorizes anything.
	rec, resp = env.do(t, http.MethodGet, "/auth/profile", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "session expired or revoked", resp.Message)
}

func TestProfileRequiresBearerToken(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodGet, "/auth/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
	req.Header.Set("Authorization", "Token abc")
	rec2 := httptest.NewRecorder()
	env.router.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusUnauthorized, rec2.Code)

	rec, _ = env.do(t, http.MethodGet, "/auth/profile", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminUserManagement(t *testing.T) {
	env := newTestEnv(t)
	userID, userToken := env.register(t, "alice@example.com", "password1", "Alice")
	_, adminToken := env.registerAdmin(t, "admin@example.com")

	// Regular users are rejected by the admin gate.
	rec, resp := env.do(t, http.MethodGet, "/auth/admin/users", userToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "admin access required", resp.Message)

	rec, resp = env.do(t, http.MethodGet, "/auth/admin/users", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listing := resp.Data.(map[string]any)
	assert.EqualValues(t, 2, listing["total"])

	rec, _ = env.do(t, http.MethodPut, "/auth/admin/users/"+userID+"/role", adminToken, map[string]string{
		"role": "admin",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated, err := env.users.GetByID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, updated.Role)

	rec, _ = env.do(t, http.MethodPut, "/auth/admin/users/"+userID+"/active", adminToken, map[string]any{
		"active": false,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// Deactivated users lose access immediately, live session or not.
	rec, resp = env.do(t, http.MethodGet, "/auth/profile", userToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "account is deactivated", resp.Message)

	rec, _ = env.do(t, http.MethodPut, "/auth/admin/users/6f2d9b01-dead-beef-0000-000000000000/active", adminToken, map[string]any{
		"active": true,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestForgotPasswordResponseIsUniform(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com", "password1", "Alice")

	rec1, resp1 := env.do(t, http.MethodPost, "/auth/forgot-password", "", map[string]string{
		"email": "alice@example.com",
	})
	rec2, resp2 := env.do(t, http.MethodPost, "/auth/forgot-password", "", map[string]string{
		"email": "nobody@example.com",
	})

	assert.Equal(t, http.StatusOK, rec1.Code)
	assert.Equal(t, http.StatusOK, rec2.Code)
	assert.Equal(t, resp1.Message, resp2.Message)

	// Only the real account got a token.
	assert.NotEmpty(t, env.notifier.resetTokens["alice@example.com"])
	assert.Empty(t, env.notifier.resetTokens["nobody@example.com"])
}

func TestResetPasswordEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com", "old-password", "Alice")

	rec, _ := env.do(t, http.MethodPost, "/auth/forgot-password", "", map[string]string{
		"email": "alice@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resetToken := env.notifier.resetTokens["alice@example.com"]
	require.NotEmpty(t, resetToken)

	rec, _ = env.do(t, http.MethodPost, "/auth/reset-password", "", map[string]string{
		"token":    resetToken,
		"password": "new-password",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "new-password",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp := env.do(t, http.MethodPost, "/auth/reset-password", "", map[string]string{
		"token":    resetToken,
		"password": "another-password",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid or expired reset token", resp.Message)
}
