package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"castline/internal/core/domain"
	"castline/internal/core/services"
	apperrors "castline/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestToAppError(t *testing.T) {
	cases := []struct {
		err       error
		status    int
		code      apperrors.ErrorCode
		retryable bool
	}{
		{domain.ErrUnauthenticated, http.StatusUnauthorized, apperrors.ErrCodeUnauthorized, false},
		{domain.ErrInsufficientPermissions, http.StatusForbidden, apperrors.ErrCodeForbidden, false},
		{domain.ErrCredentialRejected, http.StatusForbidden, apperrors.ErrCodeForbidden, false},
		{domain.ErrMessageNotFound, http.StatusNotFound, apperrors.ErrCodeNotFound, false},
		{domain.ErrContentTooLong, http.StatusBadRequest, apperrors.ErrCodeInvalidInput, false},
		{fmt.Errorf("update profile: %w", domain.ErrConflict), http.StatusConflict, apperrors.ErrCodeConflict, true},
		{domain.Unavailable("append message", errors.New("dial tcp: refused")), http.StatusServiceUnavailable, apperrors.ErrCodeServiceUnavailable, true},
		{errors.New("boom"), http.StatusInternalServerError, apperrors.ErrCodeInternal, false},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			appErr := ToAppError(tc.err)
			assert.Equal(t, tc.status, appErr.HTTPStatus)
			assert.Equal(t, tc.code, appErr.Code)
			assert.Equal(t, tc.retryable, apperrors.IsRetryable(appErr))
			assert.ErrorIs(t, appErr, tc.err)
		})
	}
}

func TestToAppError_HidesStoreDetails(t *testing.T) {
	appErr := ToAppError(domain.Unavailable("append message", errors.New("dial tcp 10.0.0.5:6379")))
	assert.NotContains(t, appErr.Message, "10.0.0.5")
}

func TestErrorHandlerMiddleware_RendersBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandlerMiddleware(zap.NewNop().Sugar()))
	router.GET("/fail", func(c *gin.Context) {
		_ = c.Error(domain.Unavailable("load stream", errors.New("timeout")))
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Error   string         `json:"error"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error)
	assert.Equal(t, true, body.Details["retryable"])
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RecoveryMiddleware(zap.NewNop().Sugar()))
	router.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func authRouter(auth services.AuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandlerMiddleware(zap.NewNop().Sugar()))
	router.Use(RequestLoggingMiddleware(zap.NewNop()))
	router.GET("/me", AuthMiddleware(auth), func(c *gin.Context) {
		id, err := IdentityFrom(c)
		if err != nil {
			_ = c.Error(err)
			return
		}
		fromCtx, err := services.IdentityFromContext(c.Request.Context())
		if err != nil || fromCtx.ID != id.ID {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id.ID, "name": id.Name})
	})
	return router
}

func TestAuthMiddleware(t *testing.T) {
	auth := services.NewAuthService("secret", "castline", time.Hour)
	router := authRouter(auth)

	token, err := auth.IssueToken(domain.Identity{ID: "user-1", Name: "Ada"})
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"id":"user-1","name":"Ada"}`, w.Body.String())
		assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	})

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("foreign signature", func(t *testing.T) {
		other, err := services.NewAuthService("other-secret", "castline", time.Hour).IssueToken(domain.Identity{ID: "user-1"})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+other)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("request id is echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set(RequestIDHeader, "req-42")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
	})
}
