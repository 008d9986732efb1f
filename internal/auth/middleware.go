package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	zlog "github.com/rs/zerolog/log"

	"github.com/collab-room-system/pkg/jwt"
)

const (
	cookieName = "auth_token"
	// ContextUserID is the gin context key holding the authenticated user.
	ContextUserID = "user_id"
)

// tokenFrom looks in the cookie, then the Authorization header, then the
// token query parameter (browsers cannot set headers on websockets).
func tokenFrom(c *gin.Context) string {
	if cookie, err := c.Cookie(cookieName); err == nil && cookie != "" {
		return cookie
	}
	if header := c.GetHeader("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return c.Query("token")
}

// Optional sets the user id when a valid token is present and lets every
// request through.
func Optional(issuer *jwt.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := tokenFrom(c); token != "" {
			claims, err := issuer.ValidateToken(token)
			if err != nil {
				zlog.Debug().Err(err).Str("path", c.FullPath()).Msg("ignoring invalid token")
			} else {
				c.Set(ContextUserID, claims.UserID)
			}
		}
		c.Next()
	}
}

// Required rejects requests without a valid token.
func Required(issuer *jwt.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFrom(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		claims, err := issuer.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Next()
	}
}
