package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kerane/projectdesk-api/internal/service"
)

// Metrics records method, route, status and latency for every request. The
// route template is used rather than the raw path so that /tasks/:id stays a
// single series.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	if metricsSvc == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			// Unmatched requests share one label to keep cardinality bounded.
			route = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
