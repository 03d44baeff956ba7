package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pairchat/internal/models"
	"pairchat/internal/service"
	"pairchat/internal/telemetry"
)

// TokenIssuer creates access tokens.
type TokenIssuer interface {
	Issue(userID uuid.UUID) (string, time.Time, error)
}

// AuthHandler serves registration and login.
type AuthHandler struct {
	identity *service.Identity
	tokens   TokenIssuer
	audit    *telemetry.AuditEmitter
}

func NewAuthHandler(identity *service.Identity, tokens TokenIssuer, audit *telemetry.AuditEmitter) *AuthHandler {
	return &AuthHandler{identity: identity, tokens: tokens, audit: audit}
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        models.User `json:"user"`
}

// Register creates an account and logs it in.
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", "invalid JSON body")
		return
	}

	user, err := h.identity.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	userID := user.ID.String()
	h.audit.Emit(c.Request.Context(), "INFO", "user registered", requestIDFromContext(c), &userID)
	h.respondWithToken(c, http.StatusCreated, user)
}

// Login exchanges credentials for an access token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", "username and password are required")
		return
	}

	user, err := h.identity.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respondWithToken(c, http.StatusOK, user)
}

func (h *AuthHandler) respondWithToken(c *gin.Context, status int, user models.User) {
	token, expires, err := h.tokens.Issue(user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expires,
		User:        user,
	})
}
