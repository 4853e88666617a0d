package middleware

import (
	"net/http"
	"strings"

	"castline/internal/core/domain"
	"castline/internal/core/services"
	apperrors "castline/pkg/errors"
	"castline/pkg/logger"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// AuthMiddleware requires a valid bearer token and puts the caller's identity
// on both the gin context and the request context.
func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			abortWith(c, apperrors.NewUnauthorizedError("bearer token required"))
			return
		}

		id, err := authService.ValidateToken(token)
		if err != nil {
			abortWith(c, apperrors.WrapError(err, apperrors.ErrCodeUnauthorized, err.Error(), http.StatusUnauthorized))
			return
		}

		setIdentity(c, id)
		c.Next()
	}
}

// OptionalAuthMiddleware attaches the identity when a valid token is present
// and lets anonymous requests through.
func OptionalAuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearer(c.GetHeader("Authorization")); ok {
			if id, err := authService.ValidateToken(token); err == nil {
				setIdentity(c, id)
			}
		}
		c.Next()
	}
}

// IdentityFrom returns the identity set by AuthMiddleware.
func IdentityFrom(c *gin.Context) (domain.Identity, error) {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(domain.Identity); ok && id.ID != "" {
			return id, nil
		}
	}
	return domain.Identity{}, domain.ErrUnauthenticated
}

func setIdentity(c *gin.Context, id domain.Identity) {
	c.Set(identityKey, id)
	ctx := services.WithIdentity(c.Request.Context(), id)
	ctx = logger.WithUserID(ctx, string(id.ID))
	c.Request = c.Request.WithContext(ctx)
}

func bearer(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func abortWith(c *gin.Context, err *apperrors.AppError) {
	_ = c.Error(err)
	c.Abort()
}
