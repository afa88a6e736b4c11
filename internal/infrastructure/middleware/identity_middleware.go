package middleware

import (
	"strings"

	"livestream/internal/core/domain"
	"livestream/pkg/errors"
	"livestream/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	// UserIDHeader carries the caller identity set by the upstream gateway.
	UserIDHeader = "X-User-ID"

	userIDKey = "user_id"
)

// IdentityMiddleware reads the caller from UserIDHeader. A missing header
// leaves the request anonymous.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID != "" {
			c.Set(userIDKey, domain.UserID(userID))
			c.Request = c.Request.WithContext(logger.WithValue(c.Request.Context(), logger.UserIDKey, userID))
		}
		c.Next()
	}
}

// RequireUser rejects anonymous requests.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CallerID(c) == "" {
			c.Error(errors.NewNotAuthorisedError(UserIDHeader + " header required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// CallerID returns the identity stored by IdentityMiddleware, or "".
func CallerID(c *gin.Context) domain.UserID {
	if v, ok := c.Get(userIDKey); ok {
		if id, ok := v.(domain.UserID); ok {
			return id
		}
	}
	return ""
}
