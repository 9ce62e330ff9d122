package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/verdantis/esgdata-backend/internal/platform/ctxutil"
)

const headerCorrelationID = "X-Correlation-Id"

// AttachRequestContext binds a correlation id to every request. The id
// travels through the context into log lines and bus messages, and comes
// back to the caller in the response header.
func AttachRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := strings.TrimSpace(c.GetHeader(headerCorrelationID))
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		ctx := ctxutil.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set(headerCorrelationID, correlationID)
		c.Next()
	}
}
