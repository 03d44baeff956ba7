package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pairchat/internal/models"
)

func TestRegisterRejectsDuplicates(t *testing.T) {
	api := setupAPI(t)
	api.register(t, "alice")

	rec := api.do(t, http.MethodPost, "/auth/register", "", gin.H{
		"username": "alice",
		"email":    "ALICE@example.com",
		"password": "another-password",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	}](t, rec)
	assert.Equal(t, "VALIDATION", body.Code)
	assert.Equal(t, "already taken", body.Fields["username"])
	assert.Equal(t, "already taken", body.Fields["email"])
}

func TestRegisterValidatesFields(t *testing.T) {
	api := setupAPI(t)

	rec := api.do(t, http.MethodPost, "/auth/register", "", gin.H{
		"username": "a b",
		"email":    "nope",
		"password": "short",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[struct {
		Fields map[string]string `json:"fields"`
	}](t, rec)
	assert.Contains(t, body.Fields, "username")
	assert.Contains(t, body.Fields, "email")
	assert.Contains(t, body.Fields, "password")
}

func TestLogin(t *testing.T) {
	api := setupAPI(t)
	alice := api.register(t, "alice")

	rec := api.do(t, http.MethodPost, "/auth/login", "", gin.H{"username": "alice", "password": "correct-horse"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[tokenResponse](t, rec)
	assert.Equal(t, alice.ID, resp.User.ID)
	assert.Equal(t, "bearer", resp.TokenType)

	rec = api.do(t, http.MethodPost, "/auth/login", "", gin.H{"username": "alice", "password": "wrong-horse"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodPost, "/auth/login", "", gin.H{"username": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfileEndpoints(t *testing.T) {
	api := setupAPI(t)
	alice := api.register(t, "alice")
	bob := api.register(t, "bob")

	rec := api.do(t, http.MethodPatch, "/users/me", alice.Token, gin.H{"bio": "hello there"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello there", decode[models.User](t, rec).Bio)

	rec = api.do(t, http.MethodGet, "/users/"+alice.ID.String(), bob.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "alice@example.com")
	assert.Equal(t, "hello there", decode[models.PublicUser](t, rec).Bio)

	rec = api.do(t, http.MethodGet, "/users/not-a-uuid", bob.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadAvatar(t *testing.T) {
	api := setupAPI(t)
	alice := api.register(t, "alice")

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "me.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg bytes"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/users/me/avatar", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+alice.Token)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	user := decode[models.User](t, rec)
	require.NotNil(t, user.AvatarRef)
	assert.Regexp(t, `^/media/[0-9a-f-]+\.jpg$`, *user.AvatarRef)
}

func TestUploadAvatarTooLarge(t *testing.T) {
	api := setupAPI(t)
	alice := api.register(t, "alice")

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "big.png")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte{'x'}, 2<<20))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/users/me/avatar", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+alice.Token)
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestDeleteAccount(t *testing.T) {
	api := setupAPI(t)
	alice := api.register(t, "alice")
	bob := api.register(t, "bob")

	rec := api.do(t, http.MethodPost, "/chats/start", alice.Token, gin.H{"recipient_id": bob.ID})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, http.MethodDelete, "/users/me", alice.Token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	api.audit.AssertCalled(t, "Publish", mock.Anything, "audit.chat", mock.Anything, mock.Anything)

	rec = api.do(t, http.MethodGet, "/chats", alice.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodGet, "/chats", bob.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"chats":[]`)
}
