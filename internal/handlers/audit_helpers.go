package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pairchat/internal/middleware"
)

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(middleware.RequestIDKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader(middleware.RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(middleware.RequestIDKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *string {
	if userID, ok := middleware.CurrentUserID(c); ok {
		value := userID.String()
		return &value
	}

	if header := c.GetHeader("X-User-ID"); header != "" {
		if parsed, err := uuid.Parse(header); err == nil {
			value := parsed.String()
			return &value
		}
	}

	return nil
}

// currentUser returns the authenticated user id or aborts with 401.
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
	}
	return userID, ok
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, name, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}
