package tenant

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderName is the default request header carrying the tenant identifier.
const HeaderName = "X-Tenant"

// Middleware resolves the tenant from the given header (falling back to the
// "tenant" query parameter) and threads it through the request context so
// repositories and change hooks scope every statement to it.
func Middleware(header string) gin.HandlerFunc {
	if header == "" {
		header = HeaderName
	}
	return func(c *gin.Context) {
		t := strings.TrimSpace(c.GetHeader(header))
		if t == "" {
			t = strings.TrimSpace(c.Query("tenant"))
		}
		if t != "" {
			if !ValidName(t) {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid tenant"})
				return
			}
			c.Request = c.Request.WithContext(With(c.Request.Context(), t))
		}
		c.Next()
	}
}
