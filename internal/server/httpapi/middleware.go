package httpapi

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/terravista/terraplan/internal/common"
)

// apiKeyHeader is the shared-secret header every mutating endpoint requires.
const apiKeyHeader = "X-API-Key"

// RequireAPIKey gates a route group behind the configured shared secret. The
// comparison is constant-time so the credential cannot be probed
// byte-by-byte via response timing. A server running without a secret
// answers 500 on every gated call rather than silently allowing access.
func RequireAPIKey(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
				Error: common.ErrorNoSecretConfigured.Error(),
			})
			return
		}

		presented := c.GetHeader(apiKeyHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{
				Error: common.ErrorUnauthorized.Error(),
			})
			return
		}

		c.Next()
	}
}
