package middleware

import (
	"context"
	"errors"
	"net/http"

	"castline/internal/core/domain"
	apperrors "castline/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ToAppError maps a coordinator error onto its transport form. Transient
// failures carry the retryable marker.
func ToAppError(err error) *apperrors.AppError {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}

	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return apperrors.WrapError(err, apperrors.ErrCodeUnauthorized, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, domain.ErrForbidden):
		return apperrors.WrapError(err, apperrors.ErrCodeForbidden, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrNotFound):
		return apperrors.WrapError(err, apperrors.ErrCodeNotFound, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrValidation):
		return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrDuplicateCommand):
		return apperrors.WrapError(err, apperrors.ErrCodeConflict, "concurrent modification, retry the request", http.StatusConflict).
			WithContext(apperrors.RetryableKey, true)
	case errors.Is(err, domain.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewTransientError(err, "service temporarily unavailable")
	default:
		return apperrors.WrapError(err, apperrors.ErrCodeInternal, "Internal server error", http.StatusInternalServerError)
	}
}

// ErrorHandlerMiddleware renders the last error a handler attached with
// c.Error as {error, message, details}.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		appErr := ToAppError(err)

		fields := []interface{}{
			"code", appErr.Code,
			"status", appErr.HTTPStatus,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		}
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			logger.Errorw("request failed", append(fields, "error", err)...)
		} else {
			logger.Infow("request rejected", append(fields, "message", appErr.Message)...)
		}

		if c.Writer.Written() {
			return
		}

		body := gin.H{
			"error":   string(appErr.Code),
			"message": appErr.Message,
		}
		if len(appErr.Context) > 0 {
			body["details"] = appErr.Context
		}
		c.JSON(appErr.HTTPStatus, body)
	}
}

// RecoveryMiddleware recovers from panics and returns proper error responses
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("panic recovered",
					"panic", r,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   string(apperrors.ErrCodeInternal),
					"message": "Internal server error",
				})
			}
		}()

		c.Next()
	}
}
