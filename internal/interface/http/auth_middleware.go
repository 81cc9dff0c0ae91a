package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// apiKeyMiddleware rejects any request that does not carry one of the
// configured pre-shared keys in X-API-Key, replacing the teacher's JWT
// bearer-token check with the single-header scheme spec §6 requires.
func apiKeyMiddleware(keys []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		allowed[k] = struct{}{}
	}
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			abortWithError(c, NewHTTPError(http.StatusUnauthorized, "unauthorized", "missing X-API-Key header", nil))
			return
		}
		if _, ok := allowed[key]; !ok {
			abortWithError(c, NewHTTPError(http.StatusUnauthorized, "unauthorized", "invalid API key", nil))
			return
		}
		c.Next()
	}
}
