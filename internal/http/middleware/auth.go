package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	userIDKey   = "userID"
	userRoleKey = "userRole"
)

// Identity is what a verified bearer token resolves to.
type Identity struct {
	UserID uint
	Role   uint
}

// TokenVerifier validates a raw bearer token.
type TokenVerifier func(raw string) (Identity, error)

// Auth resolves an optional caller identity from "Authorization: Bearer".
//
// A request without the header continues anonymously; public set metadata
// and free content must stay reachable without an account. A header that is
// present but malformed or carries an invalid token is rejected with 401
// rather than downgraded to anonymous.
func Auth(verify TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := strings.TrimSpace(c.GetHeader("Authorization"))
		if h == "" {
			c.Next()
			return
		}
		scheme, tok, found := strings.Cut(h, " ")
		tok = strings.TrimSpace(tok)
		if !found || !strings.EqualFold(scheme, "Bearer") || tok == "" {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "malformed authorization header")
			return
		}
		id, err := verify(tok)
		if err != nil || id.UserID == 0 {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}

		c.Set(userIDKey, id.UserID)
		c.Set(userRoleKey, id.Role)

		l := LoggerFrom(c).With().Uint("user_id", id.UserID).Logger()
		c.Set(loggerKey, &l)

		c.Next()
	}
}

// RequireUser rejects anonymous requests with 401. Mount it on route groups
// that have no anonymous behavior at all.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := UserID(c); !ok {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated caller, if any.
func UserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, _ := v.(uint)
	return id, id != 0
}

// UserRole returns the role carried by the caller's token. Services re-read
// roles from the store for authorization; this is for logging and metrics.
func UserRole(c *gin.Context) (uint, bool) {
	v, ok := c.Get(userRoleKey)
	if !ok {
		return 0, false
	}
	r, ok := v.(uint)
	return r, ok
}
