package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/weiawesome/wes-io-chat/pkg/response"
)

const (
	UserIDKey     = "user_id"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// UserResolver resolves the authenticated user behind an HTTP request.
type UserResolver interface {
	Resolve(r *http.Request) (string, error)
}

// RequireAuth returns a Gin middleware that aborts with 401 unless resolver
// yields a user id. The id is stored under UserIDKey.
func RequireAuth(resolver UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := resolver.Resolve(c.Request)
		if err != nil || userID == "" {
			response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get(AuthHeaderKey)
	if !strings.HasPrefix(h, BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, BearerPrefix))
}

// GetUserID returns the user id stored by RequireAuth.
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
