package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/promptrelay/common"
)

// APIKeyAuth accepts the shared secret either as X-API-Key or as a bearer token.
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	want := []byte(apiKey)

	return func(c *gin.Context) {
		got := c.GetHeader("X-API-Key")
		if got == "" {
			const prefix = "Bearer "
			if authorization := c.GetHeader("Authorization"); strings.HasPrefix(authorization, prefix) {
				got = strings.TrimSpace(strings.TrimPrefix(authorization, prefix))
			}
		}

		if len(want) == 0 || got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			c.Error(common.Errf(http.StatusUnauthorized, "%s", common.ErrUnauthorized.Error()))
			c.Abort()
			return
		}

		c.Next()
	}
}
