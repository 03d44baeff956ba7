package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pairchat/internal/apperr"
)

// UserIDKey is the gin context key holding the authenticated uuid.UUID.
const UserIDKey = "userID"

// TokenParser resolves a bearer token to a user id.
type TokenParser interface {
	Parse(token string) (uuid.UUID, error)
}

// ActivityRecorder records that a user did something.
type ActivityRecorder interface {
	Touch(ctx context.Context, userID uuid.UUID) error
}

// AuthMiddleware validates the bearer token, records the user's activity and
// stores the user id for handlers.
func AuthMiddleware(tokens TokenParser, activity ActivityRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		userID, err := tokens.Parse(strings.TrimSpace(parts[1]))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if err := activity.Touch(c.Request.Context(), userID); err != nil {
			if apperr.CodeOf(err) == apperr.CodeNotFound {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user no longer exists"})
				return
			}
			log.Printf("auth: touch failed user_id=%s err=%v", userID, err)
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// CurrentUserID returns the id stored by AuthMiddleware.
func CurrentUserID(c *gin.Context) (uuid.UUID, bool) {
	val, ok := c.Get(UserIDKey)
	if !ok {
		return uuid.Nil, false
	}
	userID, ok := val.(uuid.UUID)
	return userID, ok && userID != uuid.Nil
}
