// README: Operator auth middleware; validates JWT bearer tokens on admin routes.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	OperatorIDKey   = "operator_id"
	OperatorNameKey = "operator_name"
)

type operatorClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// OperatorAuth gates manual-edit routes. The subject claim identifies the
// operator for lease ownership and the audit trail.
func OperatorAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims := &operatorClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid || claims.Subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(OperatorIDKey, claims.Subject)
		c.Set(OperatorNameKey, claims.Name)
		c.Next()
	}
}
