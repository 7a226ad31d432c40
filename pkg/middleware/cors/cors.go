package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	allowHeaders = "Authorization, Content-Type, X-Requested-With, X-Request-ID"
	allowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	maxAge       = "600"
)

type policy struct {
	allowAll bool
	origins  map[string]struct{}
}

// New returns middleware enforcing the configured origin allow list. An empty
// list allows every origin, which is meant for local development only.
func New(allowedOrigins []string) gin.HandlerFunc {
	p := policy{
		allowAll: len(allowedOrigins) == 0,
		origins:  make(map[string]struct{}, len(allowedOrigins)),
	}
	for _, origin := range allowedOrigins {
		p.origins[normalize(origin)] = struct{}{}
	}

	return func(c *gin.Context) {
		header := c.Writer.Header()
		header.Set("Vary", "Origin")

		if origin := c.GetHeader("Origin"); origin != "" {
			if p.allows(origin) {
				header.Set("Access-Control-Allow-Origin", origin)
			}
		} else if p.allowAll {
			header.Set("Access-Control-Allow-Origin", "*")
		}

		header.Set("Access-Control-Allow-Credentials", "true")
		header.Set("Access-Control-Allow-Headers", allowHeaders)
		header.Set("Access-Control-Allow-Methods", allowMethods)
		header.Set("Access-Control-Max-Age", maxAge)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (p policy) allows(origin string) bool {
	if p.allowAll {
		return true
	}
	_, ok := p.origins[normalize(origin)]
	return ok
}

func normalize(origin string) string {
	return strings.ToLower(strings.TrimRight(origin, "/"))
}
