package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/motta-superate/grades-api/internal/models"
	appErrors "github.com/motta-superate/grades-api/pkg/errors"
	"github.com/motta-superate/grades-api/pkg/response"
)

// RoleSelf is the pseudo-role letting a caller act on their own resource:
// the route's :id parameter has to match the caller's user ID.
const RoleSelf = "SELF"

// RBAC allows the request through when the caller's role is in the allowed
// set, or when SELF is allowed and the target is the caller.
func RBAC(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := CurrentUser(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		allowSelf := false
		for _, role := range allowed {
			if role == RoleSelf {
				allowSelf = true
				continue
			}
			if models.UserRole(role) == claims.Role {
				c.Next()
				return
			}
		}

		if allowSelf && c.Param("id") != "" && c.Param("id") == claims.UserID {
			c.Next()
			return
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireRoles wraps RBAC with typed roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, role := range roles {
		allowed[i] = string(role)
	}
	return RBAC(allowed...)
}
