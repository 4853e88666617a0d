package http

import (
	"castline/internal/core/domain"
	"castline/internal/infrastructure/middleware"
	apperrors "castline/pkg/errors"

	"github.com/gin-gonic/gin"
)

// caller returns the authenticated identity, attaching an error to c when
// there is none.
func caller(c *gin.Context) (domain.Identity, bool) {
	id, err := middleware.IdentityFrom(c)
	if err != nil {
		_ = c.Error(err)
		return domain.Identity{}, false
	}
	return id, true
}

func invalidInput(c *gin.Context, message string) {
	_ = c.Error(apperrors.NewInvalidInputError(message))
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		invalidInput(c, "invalid request format")
		return false
	}
	return true
}
