package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/migralert/migralert-backend/internal/platform/ctxutil"
)

// AttachRequestContext records the client IP so anonymous callers can be
// identified for dedup and rate limiting.
func AttachRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := ctxutil.WithClientIP(c.Request.Context(), c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
