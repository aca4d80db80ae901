package mw

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AccessKeyHeader carries the guest or admin access key on every gated
// request.
const AccessKeyHeader = "X-Access-Key"

// KeyValidator is the slice of the access key validator middleware needs.
type KeyValidator interface {
	Validate(key string) bool
	IsAdmin(key string) bool
}

// AccessKey gates a route group on a valid access key: the admin key or the
// code of the currently active reservation.
func AccessKey(v KeyValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !v.Validate(c.GetHeader(AccessKeyHeader)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// AdminOnly gates a route on the admin key specifically; guest codes are
// rejected even while their reservation is active.
func AdminOnly(v KeyValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !v.IsAdmin(c.GetHeader(AccessKeyHeader)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
