package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"pairchat/internal/apperr"
)

var statusByCode = map[apperr.Code]int{
	apperr.CodeNotFound:        http.StatusNotFound,
	apperr.CodeNotParticipant:  http.StatusForbidden,
	apperr.CodeContentMismatch: http.StatusBadRequest,
	apperr.CodeValidation:      http.StatusBadRequest,
	apperr.CodeConflict:        http.StatusConflict,
	apperr.CodeUnauthenticated: http.StatusUnauthorized,
}

// respondError writes err as JSON. Untyped and internal errors are logged
// and answered with a generic 500.
func respondError(c *gin.Context, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) || e.Code == apperr.CodeInternal {
		log.Printf("request failed method=%s path=%s request_id=%s err=%v", c.Request.Method, c.FullPath(), requestIDFromContext(c), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": apperr.CodeInternal})
		return
	}

	status, ok := statusByCode[e.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	body := gin.H{"error": e.Message, "code": e.Code}
	if len(e.Fields) > 0 {
		body["fields"] = e.Fields
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, field, msg string) {
	respondError(c, apperr.Invalid(field, msg))
}
