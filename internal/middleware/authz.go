package middleware

import (
	"github.com/gin-gonic/gin"

	"korner-support-service/internal/apierror"
)

// RequireRoles must run after Auth.Required. forbidden is the module error code
// returned when the role does not match (KYC_FORBIDDEN, SUPPORT_FORBIDDEN).
func RequireRoles(forbidden apierror.ErrorCode, allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}
	return func(c *gin.Context) {
		if _, ok := UserID(c); !ok {
			abortWithError(c, apierror.New(apierror.AuthTokenRequired, "Authorization token required"))
			return
		}
		if _, ok := allowedSet[Role(c)]; !ok {
			abortWithError(c, apierror.New(forbidden, "Admin access required"))
			return
		}
		c.Next()
	}
}
