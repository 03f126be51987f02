package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const playerIDKey = "playerID"

// identityClaims mirrors the tokens minted by the external login service:
// the stable player identifier rides in the userId claim, with the subject
// as fallback.
type identityClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
}

func (c *identityClaims) playerID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// RequireAuth verifies the bearer credential and stashes the player
// identifier on the request context. The credential itself is opaque to the
// game core; only the identity it resolves to matters here.
func RequireAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}
		claims := &identityClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return secret, nil
		})
		if err != nil || !parsed.Valid || claims.playerID() == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}
		c.Set(playerIDKey, claims.playerID())
		c.Next()
	}
}

func playerFrom(c *gin.Context) string {
	return c.GetString(playerIDKey)
}
