package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const CtxClaimsKey = "auth_claims"

// AuthRequired gates mutating endpoints. A token is accepted only when its
// signature verifies and its access_tokens row still exists; an expired row
// is deleted before the 401 is returned, so the token dies on first use
// after expiry.
func AuthRequired(tokens TokenService, repo *Repo) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, expired := resolveToken(c, tokens, repo)
		if expired {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token expired, please login again"})
			c.Abort()
			return
		}
		if claims == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing bearer token"})
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Next()
	}
}

// AuthOptional resolves the caller when a valid token is supplied and stays
// anonymous otherwise. Public listings use it to compute is_bookmarked.
func AuthOptional(tokens TokenService, repo *Repo) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, _ := resolveToken(c, tokens, repo); claims != nil {
			c.Set(CtxClaimsKey, claims)
		}
		c.Next()
	}
}

func resolveToken(c *gin.Context, tokens TokenService, repo *Repo) (claims *Claims, expired bool) {
	h := c.GetHeader("Authorization")
	if h == "" || !strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return nil, false
	}

	raw := strings.TrimSpace(h[len("Bearer "):])
	parsed, err := tokens.Parse(raw)
	if err != nil {
		return nil, false
	}

	rec, err := repo.GetToken(c.Request.Context(), parsed.ID)
	if err != nil || rec == nil {
		return nil, false
	}
	if time.Now().After(rec.ExpiresAt) {
		_ = repo.DeleteToken(c.Request.Context(), rec.ID)
		return nil, true
	}
	return parsed, false
}

func MustGetClaims(c *gin.Context) *Claims {
	v, ok := c.Get(CtxClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*Claims)
	return claims
}

// CallerID returns the authenticated user's id, or 0 for anonymous callers.
func CallerID(c *gin.Context) int64 {
	if claims := MustGetClaims(c); claims != nil {
		return claims.UserID
	}
	return 0
}
