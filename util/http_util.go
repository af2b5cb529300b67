// util/http_util.go
package util

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	semble_errors "github.com/dev-mohitbeniwal/semble/errors"
	logger "github.com/dev-mohitbeniwal/semble/logging"
)

// ContextUserID is the gin context key holding the authenticated caller.
const ContextUserID = "requestingUserID"

func RespondWithError(c *gin.Context, code int, message string, err error) {
	logger.Error(message,
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method))
	c.JSON(code, gin.H{"error": message})
}

// StatusForError maps service errors onto HTTP status codes.
func StatusForError(err error) int {
	var verr *semble_errors.ValidationError
	if errors.As(err, &verr) {
		return http.StatusUnprocessableEntity
	}
	var perr *semble_errors.PermissionError
	if errors.As(err, &perr) {
		return http.StatusForbidden
	}

	switch semble_errors.CategoryOf(err) {
	case semble_errors.CategoryAuth:
		if semble_errors.CodeOf(err) == semble_errors.CodeForbidden {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case semble_errors.CategoryValidation:
		return http.StatusBadRequest
	case semble_errors.CategoryPermission:
		return http.StatusForbidden
	case semble_errors.CategoryNetwork:
		if semble_errors.CodeOf(err) == semble_errors.CodeTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case semble_errors.CategoryAPI:
		switch semble_errors.CodeOf(err) {
		case semble_errors.CodeNotFound, semble_errors.CodeTypeNotFound:
			return http.StatusNotFound
		case semble_errors.CodeRateLimitExceeded:
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// RespondWithServiceError writes err with the status from StatusForError
// and, where available, its category, code and field errors.
func RespondWithServiceError(c *gin.Context, err error) {
	status := StatusForError(err)
	body := gin.H{"error": err.Error()}

	var se *semble_errors.SembleError
	var verr *semble_errors.ValidationError
	var perr *semble_errors.PermissionError
	switch {
	case errors.As(err, &verr):
		body["category"] = semble_errors.CategoryValidation
		body["code"] = semble_errors.CodeValidationFailed
		body["fields"] = verr.Errors
	case errors.As(err, &perr):
		body["category"] = semble_errors.CategoryPermission
		body["code"] = semble_errors.CodePermissionDenied
		body["restrictedFields"] = perr.RestrictedFields
	case errors.As(err, &se):
		body["error"] = se.Message
		body["category"] = se.Category
		body["code"] = se.Code
		if len(se.Context) > 0 {
			body["context"] = se.Context
		}
	}

	fields := []zap.Field{
		zap.Error(err),
		zap.Int("status", status),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", fields...)
	} else {
		logger.Warn("Request rejected", fields...)
	}
	c.JSON(status, body)
}

// GetUserIDFromContext returns the caller set by the auth middleware, or ""
// when the route is unauthenticated.
func GetUserIDFromContext(c *gin.Context) string {
	userID, exists := c.Get(ContextUserID)
	if !exists {
		return ""
	}
	id, _ := userID.(string)
	return id
}
