package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/internship-lifecycle-api/pkg/errors"
	"github.com/noah-isme/internship-lifecycle-api/pkg/response"
)

// RequireRoles rejects callers whose token role is not listed. Finer checks
// (ownership, supervisor assignment) stay in the services.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := ClaimsFromContext(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clonef(appErrors.ErrForbidden, "role %s may not call %s", claims.Role, c.FullPath()))
			c.Abort()
			return
		}
		c.Next()
	}
}

// Operators is the admin and coordinator role set.
func Operators() gin.HandlerFunc {
	return RequireRoles(models.RoleAdmin, models.RoleCoordinator)
}
