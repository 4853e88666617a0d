package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", http.StatusBadRequest)
	assert.Equal(t, "INVALID_INPUT: test error", err.Error())
}

func TestAppError_WithCause(t *testing.T) {
	originalErr := errors.New("original error")
	err := WrapError(originalErr, ErrCodeInternal, "wrapped error", http.StatusInternalServerError)

	assert.Same(t, originalErr, err.Cause)
	assert.Contains(t, err.Error(), "original error")
	assert.ErrorIs(t, err, originalErr)
}

func TestAppError_WithContext(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", http.StatusBadRequest)
	err.WithContext("field", "value").WithContext("count", 42)

	assert.Equal(t, "value", err.Context["field"])
	assert.Equal(t, 42, err.Context["count"])
}

func TestConstructors(t *testing.T) {
	cases := []struct {
		err    *AppError
		code   ErrorCode
		status int
	}{
		{NewInvalidInputError("bad"), ErrCodeInvalidInput, http.StatusBadRequest},
		{NewUnauthorizedError("who"), ErrCodeUnauthorized, http.StatusUnauthorized},
		{NewRateLimitError(), ErrCodeRateLimit, http.StatusTooManyRequests},
		{NewServiceUnavailableError("down"), ErrCodeServiceUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			assert.Equal(t, tc.code, tc.err.Code)
			assert.Equal(t, tc.status, tc.err.HTTPStatus)
		})
	}
}

func TestTransientError(t *testing.T) {
	cause := errors.New("redis: connection refused")
	err := NewTransientError(cause, "store unavailable")

	assert.Equal(t, ErrCodeServiceUnavailable, err.Code)
	assert.Equal(t, http.StatusServiceUnavailable, err.HTTPStatus)
	assert.True(t, IsRetryable(err))
	assert.True(t, IsRetryable(fmt.Errorf("handler: %w", err)))
	assert.False(t, IsRetryable(NewUnauthorizedError("no")))
	assert.False(t, IsRetryable(cause))
}

func TestGetAppError(t *testing.T) {
	appErr := NewAppError(ErrCodeInvalidInput, "test", http.StatusBadRequest)
	assert.Same(t, appErr, GetAppError(appErr))

	wrapped := fmt.Errorf("outer: %w", appErr)
	require.NotNil(t, GetAppError(wrapped))
	assert.Same(t, appErr, GetAppError(wrapped))

	assert.Nil(t, GetAppError(errors.New("regular error")))
	assert.Nil(t, GetAppError(nil))
}
