package security

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// apiPolicy is the content security policy of JSON responses.
const apiPolicy = "default-src 'none'; frame-ancestors 'none'"

// SecurityHeadersMiddleware adds security headers to all responses. The
// swagger UI under docsPrefix serves its own scripts and is exempt from the
// content security policy.
func SecurityHeadersMiddleware(docsPrefix string, hsts bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		if docsPrefix == "" || !strings.HasPrefix(c.Request.URL.Path, docsPrefix) {
			c.Header("Content-Security-Policy", apiPolicy)
		}

		if hsts && c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
