package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"castline/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	ErrExpiredToken = fmt.Errorf("%w: token expired", domain.ErrUnauthenticated)
)

// AuthService is the identity collaborator. It verifies bearer tokens and
// yields the stable id and display attributes of the caller; it never looks
// at permissions.
type AuthService interface {
	IssueToken(id domain.Identity) (string, error)
	ValidateToken(tokenString string) (domain.Identity, error)
}

type Claims struct {
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

type authService struct {
	jwtSecret []byte
	issuer    string
	tokenTTL  time.Duration
}

func NewAuthService(jwtSecret, issuer string, tokenTTL time.Duration) AuthService {
	return &authService{
		jwtSecret: []byte(jwtSecret),
		issuer:    issuer,
		tokenTTL:  tokenTTL,
	}
}

func (s *authService) IssueToken(id domain.Identity) (string, error) {
	if id.ID == "" {
		return "", fmt.Errorf("%w: identity has no id", domain.ErrValidation)
	}

	now := time.Now()
	claims := &Claims{
		Name:    id.Name,
		Picture: id.Image,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(id.ID),
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *authService) ValidateToken(tokenString string) (domain.Identity, error) {
	if tokenString == "" {
		return domain.Identity{}, domain.ErrUnauthenticated
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, ErrExpiredToken
		}
		return domain.Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return domain.Identity{}, ErrInvalidToken
	}

	return domain.Identity{
		ID:    domain.UserID(claims.Subject),
		Name:  claims.Name,
		Image: claims.Picture,
	}, nil
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity stored by the auth middleware.
func IdentityFromContext(ctx context.Context) (domain.Identity, error) {
	id, ok := ctx.Value(identityKey{}).(domain.Identity)
	if !ok || id.ID == "" {
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	return id, nil
}
