package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pairchat/internal/media"
	"pairchat/internal/service"
	"pairchat/internal/telemetry"
)

// UserHandler serves profile endpoints.
type UserHandler struct {
	identity    *service.Identity
	media       media.Store
	audit       *telemetry.AuditEmitter
	maxUploadMB int64
}

func NewUserHandler(identity *service.Identity, store media.Store, audit *telemetry.AuditEmitter, maxUploadMB int64) *UserHandler {
	return &UserHandler{identity: identity, media: store, audit: audit, maxUploadMB: maxUploadMB}
}

// GetUser returns the public profile of a user.
func (h *UserHandler) GetUser(c *gin.Context) {
	userID, ok := parseUUIDParam(c, "user_id")
	if !ok {
		return
	}
	user, err := h.identity.GetUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user.Public())
}

// Me returns the authenticated user's own record.
func (h *UserHandler) Me(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	user, err := h.identity.GetUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateMe changes the caller's bio.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req struct {
		Bio *string `json:"bio"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", "invalid JSON body")
		return
	}

	user, err := h.identity.UpdateProfile(c.Request.Context(), userID, service.ProfileInput{Bio: req.Bio})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UploadAvatar stores an image and sets it as the caller's avatar.
func (h *UserHandler) UploadAvatar(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if !parseMultipart(c, h.maxUploadMB<<20) {
		return
	}
	file, ref, ok := saveUpload(c, h.media)
	if !ok {
		return
	}

	user, err := h.identity.UpdateProfile(c.Request.Context(), userID, service.ProfileInput{AvatarRef: &ref})
	if err != nil {
		file.Discard(c.Request.Context(), ref)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeleteMe removes the caller's account together with their chats.
func (h *UserHandler) DeleteMe(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.identity.DeleteAccount(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}

	id := userID.String()
	h.audit.Emit(c.Request.Context(), "INFO", "account deleted", requestIDFromContext(c), &id)
	c.Status(http.StatusNoContent)
}
