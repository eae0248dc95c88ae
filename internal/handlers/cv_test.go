package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCVOwnerOrAdminAccess(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.register(t, "alice@example.com", "password1", "Alice")
	_, bobToken := env.register(t, "bob@example.com", "password1", "Bob")
	_, adminToken := env.registerAdmin(t, "admin@example.com")

	rec, _ := env.do(t, http.MethodPost, "/cv/"+aliceID+"/initialize", aliceToken, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	// The owner reads their own CV.
	rec, resp := env.do(t, http.MethodGet, "/cv/"+aliceID+"/", aliceToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	// Another user is rejected before the resource is even looked up.
	rec, resp = env.do(t, http.MethodGet, "/cv/"+aliceID+"/", bobToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "access denied", resp.Message)

	rec, resp = env.do(t, http.MethodDelete, "/cv/"+aliceID+"/", bobToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "access denied", resp.Message)

	// Admins may act on any user's CV.
	rec, _ = env.do(t, http.MethodGet, "/cv/"+aliceID+"/", adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// No token at all fails closed.
	rec, _ = env.do(t, http.MethodGet, "/cv/"+aliceID+"/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCVListingIsAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	_, userToken := env.register(t, "alice@example.com", "password1", "Alice")
	_, adminToken := env.registerAdmin(t, "admin@example.com")

	rec, resp := env.do(t, http.MethodGet, "/cv/", userToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "admin access required", resp.Message)

	rec, resp = env.do(t, http.MethodGet, "/cv/", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	rec, _ = env.do(t, http.MethodGet, "/cv/search?keywords=go", userToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCVLifecycle(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.register(t, "alice@example.com", "password1", "Alice")

	// Nothing to fetch before initialization.
	rec, resp := env.do(t, http.MethodGet, "/cv/"+aliceID+"/", aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "cv not found", resp.Message)

	rec, resp = env.do(t, http.MethodPost, "/cv/"+aliceID+"/initialize", aliceToken, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := resp.Data.(map[string]any)
	content := created["content"].(map[string]any)
	personal := content["personal"].(map[string]any)
	assert.Equal(t, "Alice", personal["full_name"])
	assert.Equal(t, "alice@example.com", personal["email"])

	// A second initialize conflicts.
	rec, _ = env.do(t, http.MethodPost, "/cv/"+aliceID+"/initialize", aliceToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, resp = env.do(t, http.MethodPut, "/cv/"+aliceID+"/", aliceToken, map[string]any{
		"personal": map[string]string{"full_name": "Alice A."},
		"summary":  "Backend engineer",
		"skills":   []string{"Go"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := resp.Data.(map[string]any)
	assert.Equal(t, "Backend engineer", updated["content"].(map[string]any)["summary"])

	rec, _ = env.do(t, http.MethodDelete, "/cv/"+aliceID+"/", aliceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = env.do(t, http.MethodGet, "/cv/"+aliceID+"/", aliceToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCVSearchEndpoint(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.register(t, "alice@example.com", "password1", "Alice")
	_, adminToken := env.registerAdmin(t, "admin@example.com")

	rec, _ := env.do(t, http.MethodPost, "/cv/"+aliceID+"/initialize", aliceToken, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = env.do(t, http.MethodPut, "/cv/"+aliceID+"/", aliceToken, map[string]any{
		"personal": map[string]string{"full_name": "Alice"},
		"skills":   []string{"Go", "PostgreSQL"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := env.do(t, http.MethodGet, "/cv/search", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "keywords are required", resp.Message)

	rec, resp = env.do(t, http.MethodGet, "/cv/search?keywords=go,postgresql", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listing := resp.Data.(map[string]any)
	assert.EqualValues(t, 1, listing["total"])

	rec, resp = env.do(t, http.MethodGet, "/cv/search?keywords=rust", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listing = resp.Data.(map[string]any)
	assert.EqualValues(t, 0, listing["total"])
}

func TestUploadPhotoRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.register(t, "alice@example.com", "password1", "Alice")

	rec, _ := env.do(t, http.MethodPost, "/cv/"+aliceID+"/initialize", aliceToken, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/cv/"+aliceID+"/photo", bytes.NewBufferString("raw"))
		req.Header.Set("Authorization", "Bearer "+aliceToken)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing photo field", func(t *testing.T) {
		rec := env.uploadPhoto(t, aliceID, aliceToken, "other", "a.png", []byte("data"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unsupported content", func(t *testing.T) {
		rec := env.uploadPhoto(t, aliceID, aliceToken, formFieldPhoto, "a.txt", []byte("plain text, not an image"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func (e *testEnv) uploadPhoto(t *testing.T, userID, token, field, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/cv/"+userID+"/photo", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}
