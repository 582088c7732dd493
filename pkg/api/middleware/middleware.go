// Package middleware adapts gin's standard logging/recovery/CORS chain
// (grounded on the teacher's pkg/api/middleware.LoggingMiddleware /
// RecoveryMiddleware / CORSMiddleware) and adds the bearer-token
// authentication gate spec.md §4.6 requires on every admin route.
package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/queryrun/server/internal/authn"
	"github.com/queryrun/server/internal/storage"
)

// principalKey is the gin context key Auth stores the authenticated
// principal under; handlers read it back with Principal(c).
const principalKey = "principal"

// Auth authenticates the bearer token on every request and rejects anything
// without one, per spec.md §4.6: admin routes are never reachable
// unauthenticated.
func Auth(configDB *storage.DB, secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization token required"})
			c.Abort()
			return
		}

		principal, err := authn.Authenticate(c.Request.Context(), configDB, secret, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// Principal returns the principal Auth attached to c, or nil if Auth never
// ran (e.g. a non-admin route).
func Principal(c *gin.Context) *authn.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*authn.Principal)
	return p
}

// RequireWrite rejects read-only tokens from mutating endpoints.
func RequireWrite() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := Principal(c)
		if p == nil || p.RequireWrite() != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "write access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin rejects non-admin tokens from admin-only endpoints.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := Principal(c)
		if p == nil || p.RequireAdmin() != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireFeatureFlag rejects requests to a builder/admin endpoint unless
// at least one of the named _config_option flags is truthy, per spec.md
// §4.1 ("Feature flag (create_user or create_token) is ON"). A disabled
// flag reads as a missing route (404), matching spec.md §7's "feature
// flag off" -> Not found mapping.
func RequireFeatureFlag(configDB *storage.DB, names ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, name := range names {
			enabled, err := storage.OptionEnabled(c.Request.Context(), configDB, name)
			if err == nil && enabled {
				c.Next()
				return
			}
		}
		c.Status(http.StatusNotFound)
		c.Abort()
	}
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	if token := c.Query("token"); token != "" {
		return token
	}
	return ""
}

// RequestID stamps every request with a UUID the logger and handlers can
// both refer to, matching the teacher's practice of threading one ID
// through a request's lifetime.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// CORS mirrors the teacher's permissive CORS policy.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Logging mirrors the teacher's LoggingMiddleware formatter, prefixed with
// the request id RequestID stored on the context.
func Logging() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%v %s - [%s] \"%s %s %s %d %s\" \"%s\"\n",
			param.Keys["request_id"],
			param.ClientIP,
			param.TimeStamp.Format("02/Jan/2006:15:04:05 -0700"),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.ErrorMessage,
		)
	})
}

// Recovery mirrors the teacher's RecoveryMiddleware.
func Recovery() gin.HandlerFunc {
	return gin.Recovery()
}
