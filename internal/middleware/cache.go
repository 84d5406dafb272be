package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// NoStore marks responses as uncacheable. Attempt state changes every second
// and must never be served from a proxy.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// CacheControl lets shared caches keep a response for maxAgeSeconds. Used for
// question set payloads, which are immutable once created.
func CacheControl(maxAgeSeconds int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAgeSeconds))
		c.Next()
	}
}
