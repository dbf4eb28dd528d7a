package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/flockhq/flock/internal/pkg/errcode"
	"github.com/flockhq/flock/internal/pkg/jwt"
	"github.com/flockhq/flock/internal/pkg/response"
)

const (
	ContextUserIDKey = "user_id"
	ContextClaimsKey = "session_claims"

	SessionCookieName = "flock_session"
)

// SessionAuth accepts the session cookie minted by the auth collaborator,
// or a bearer token for non-browser clients.
func SessionAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, errcode.ErrUnauthorized, "missing session")
			c.Abort()
			return
		}
		claims, err := jwt.ParseToken(token, secret)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, errcode.ErrUnauthorized, "invalid session")
			c.Abort()
			return
		}
		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextClaimsKey, claims)
		c.Next()
	}
}

func tokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie != "" {
		return cookie
	}
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

// ClaimsFrom returns the parsed session claims, nil when unauthenticated.
func ClaimsFrom(c *gin.Context) *jwt.Claims {
	v, ok := c.Get(ContextClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*jwt.Claims)
	return claims
}
