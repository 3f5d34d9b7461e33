package middleware

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/assign-override-api/pkg/errors"
)

// RequireCapability only lets through callers whose token grants every listed capability.
func RequireCapability(capabilities ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := CurrentClaims(c)
		if claims == nil {
			abort(c, appErrors.ErrUnauthorized)
			return
		}
		for _, capability := range capabilities {
			if !claims.Has(capability) {
				abort(c, appErrors.Clone(appErrors.ErrForbidden, "missing capability "+capability))
				return
			}
		}
		c.Next()
	}
}
