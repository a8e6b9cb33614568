package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// securityHeaders sets the response headers appropriate for a clinical
// safety API: no MIME sniffing, no framing, and a restrictive content
// security policy, since PredictionResult and Alert payloads carry
// patient-identifying session context.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		}
		c.Header("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		c.Next()
	}
}

// requestTimeout bounds how long a single request (principally an assess
// call running the full pipeline) may run before the caller gets a 408
// rather than an indefinitely hanging connection.
func requestTimeout(d time.Duration) gin.HandlerFunc {
	return gin.TimeoutWithHandler(d, func(c *gin.Context) {
		c.JSON(http.StatusRequestTimeout, gin.H{
			"error":      "request timeout",
			"request_id": requestID(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		})
	})
}
