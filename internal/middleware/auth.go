package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/osvaldoandrade/comfyq/pkg/auth"

	"github.com/gin-gonic/gin"
)

const claimsKey = "claims"

// AuthMiddleware requires a bearer token accepted by validator. A nil validator
// disables authentication.
func AuthMiddleware(validator auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if validator == nil {
			c.Next()
			return
		}
		claims, err := validateBearer(validator, c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(claimsKey, claims)
		c.Set("subject", claims.Subject)
		c.Next()
	}
}

// RequireScope rejects authenticated callers whose claims lack scope. Requests
// that passed through a disabled AuthMiddleware carry no claims and are allowed.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(claimsKey)
		if !ok {
			c.Next()
			return
		}
		if claims, _ := v.(*auth.Claims); !claims.HasScope(scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "missing scope " + scope})
			return
		}
		c.Next()
	}
}

// Claims returns the claims stored by AuthMiddleware, or nil.
func Claims(c *gin.Context) *auth.Claims {
	v, _ := c.Get(claimsKey)
	claims, _ := v.(*auth.Claims)
	return claims
}

func validateBearer(validator auth.Validator, authHeader string) (*auth.Claims, error) {
	token := bearerToken(authHeader)
	if token == "" {
		if strings.TrimSpace(authHeader) == "" {
			return nil, errors.New("missing Authorization header")
		}
		return nil, errors.New("invalid Authorization format")
	}
	return validator.Validate(token)
}

func bearerToken(authHeader string) string {
	parts := strings.SplitN(strings.TrimSpace(authHeader), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
