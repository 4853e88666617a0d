package services

import (
	"context"
	"testing"
	"time"

	"castline/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_RoundTrip(t *testing.T) {
	auth := NewAuthService("secret", "castline", time.Hour)

	token, err := auth.IssueToken(domain.Identity{ID: "u1", Name: "Ada", Image: "https://img/ada.png"})
	require.NoError(t, err)

	id, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, domain.Identity{ID: "u1", Name: "Ada", Image: "https://img/ada.png"}, id)
}

func TestAuthService_Rejects(t *testing.T) {
	auth := NewAuthService("secret", "castline", time.Hour)

	_, err := auth.IssueToken(domain.Identity{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = auth.ValidateToken("")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = auth.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	otherIssuer, err := NewAuthService("secret", "someone-else", time.Hour).IssueToken(domain.Identity{ID: "u1"})
	require.NoError(t, err)
	_, err = auth.ValidateToken(otherIssuer)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewAuthService("secret", "castline", -time.Minute).IssueToken(domain.Identity{ID: "u1"})
	require.NoError(t, err)
	_, err = auth.ValidateToken(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestIdentityContext(t *testing.T) {
	_, err := IdentityFromContext(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	ctx := WithIdentity(context.Background(), alice)
	id, err := IdentityFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, alice, id)
}
