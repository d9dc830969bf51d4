package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/internship-lifecycle-api/internal/middleware"
	"github.com/noah-isme/internship-lifecycle-api/internal/models"
	appErrors "github.com/noah-isme/internship-lifecycle-api/pkg/errors"
	"github.com/noah-isme/internship-lifecycle-api/pkg/response"
)

// actorFromContext resolves the caller set by the JWT middleware. It writes the
// 401 response itself and reports false when no claims are present.
func actorFromContext(c *gin.Context) (models.Actor, bool) {
	claims := middleware.ClaimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Actor{}, false
	}
	return claims.Actor(), true
}

func bindJSON(c *gin.Context, dst interface{}, what string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid "+what+" payload"))
		return false
	}
	return true
}

func bindQuery(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return false
	}
	return true
}

func countMeta(n int) map[string]interface{} {
	return map[string]interface{}{"count": n}
}
