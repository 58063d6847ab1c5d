package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
)

var (
	ErrInvalidToken = errors.New("access token is invalid")
	ErrTokenExpired = errors.New("access token is expired")
)

// Claims mirrors the access tokens minted by the platform's identity
// service. Subject carries the user id, Role the platform role.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService validates platform-issued access tokens. It is stateless:
// couriers and senders are registered upstream, this service only needs to
// know who is calling.
type TokenService struct {
	secret []byte
	log    logger.Logger
}

func NewTokenService(secret string, log logger.Logger) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		log:    log,
	}
}

// RoleCheck validates the token and returns the caller it describes.
func (s *TokenService) RoleCheck(ctx context.Context, token string) (*models.Principal, error) {
	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		s.log.Debug(ctx, "token validation failed", "error", err.Error())
		return nil, ErrInvalidToken
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &models.Principal{
		ID:   id,
		Role: types.UserRole(claims.Role),
	}, nil
}

// Generate mints a token signed with the shared secret. Used by tests and
// local environments; production tokens come from the identity service.
func (s *TokenService) Generate(principal models.Principal, ttl time.Duration) (string, error) {
	now := time.Now().UTC()

	claims := Claims{
		Role: principal.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
