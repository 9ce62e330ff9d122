package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/verdantis/esgdata-backend/internal/observability"
)

// Metrics instruments HTTP request counts and latency when metrics are
// enabled.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		m.APIInflight.Inc()
		defer m.APIInflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		m.APIRequests.Inc(method, route, status)
		m.APILatency.Observe(time.Since(start).Seconds(), method, route)
	}
}
