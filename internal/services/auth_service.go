package services

import (
	"context"
	"time"

	staylink_errors "staylink-chat/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthService validates access tokens issued by the platform's identity
// service. Token issuance, refresh, and password handling all live outside
// this module; only verification happens here.
type AuthService struct {
	secret []byte
}

type AccessClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func NewAuthService(secret string) *AuthService {
	return &AuthService{secret: []byte(secret)}
}

func (s *AuthService) ParseAccessToken(token string) (*AccessClaims, error) {
	if token == "" {
		return nil, staylink_errors.ErrUnauthorized
	}

	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, staylink_errors.ErrUnauthorized
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, staylink_errors.ErrUnauthorized
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return nil, staylink_errors.ErrUnauthorized
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, staylink_errors.ErrUnauthorized
	}
	return claims, nil
}

type identityCtxKey struct{}

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	UserID uuid.UUID
	Role   string
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}
