package middleware

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	logger "github.com/dev-mohitbeniwal/semble/logging"
	"github.com/dev-mohitbeniwal/semble/util"
)

// CallerClaims are the claims of an HS256 token issued to API callers.
type CallerClaims struct {
	jwt.RegisteredClaims
	Groups   []string `json:"groups"`
	Username string   `json:"username"`
}

// GroupAuthMiddleware verifies the bearer token with secret and requires
// membership of one of requiredGroups. An empty requiredGroups admits any
// valid token. The token subject becomes the requesting user.
func GroupAuthMiddleware(secret []byte, requiredGroups []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.GetHeader("Authorization")
		if tokenString == "" {
			logger.Warn("No Authorization token provided", zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		claims, err := parseToken(tokenString, secret)
		if err != nil {
			logger.Warn("Rejected caller token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		if !isUserInGroups(claims, requiredGroups) {
			logger.Warn("User does not have the required groups",
				zap.String("sub", claims.Subject),
				zap.Strings("groups", claims.Groups))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}

		c.Set(util.ContextUserID, claims.Subject)
		c.Set("requestingUser", claims.Username)
		c.Next()
	}
}

func parseToken(tokenString string, secret []byte) (*CallerClaims, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	token, err := jwt.ParseWithClaims(tokenString, &CallerClaims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*CallerClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token or wrong claims type")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

func isUserInGroups(claims *CallerClaims, requiredGroups []string) bool {
	if len(requiredGroups) == 0 {
		return true
	}
	for _, group := range requiredGroups {
		if slices.Contains(claims.Groups, group) {
			return true
		}
	}
	return false
}
