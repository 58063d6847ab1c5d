package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velodrop/courier-dispatch-system/internal/domain/models"
	"github.com/velodrop/courier-dispatch-system/internal/domain/types"
	"github.com/velodrop/courier-dispatch-system/pkg/logger"
)

func newTestTokenService(secret string) *TokenService {
	return NewTokenService(secret, logger.InitLogger("test", logger.LevelError))
}

func TestRoleCheck_RoundTrip(t *testing.T) {
	svc := newTestTokenService("test-secret")

	courier := models.Principal{ID: uuid.New(), Role: types.RoleCourier}
	token, err := svc.Generate(courier, time.Minute)
	require.NoError(t, err)

	got, err := svc.RoleCheck(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, courier.ID, got.ID)
	assert.Equal(t, types.RoleCourier, got.Role)
}

func TestRoleCheck_Expired(t *testing.T) {
	svc := newTestTokenService("test-secret")

	token, err := svc.Generate(models.Principal{ID: uuid.New(), Role: types.RoleSender}, -time.Minute)
	require.NoError(t, err)

	_, err = svc.RoleCheck(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestRoleCheck_WrongSecret(t *testing.T) {
	minting := newTestTokenService("secret-a")
	checking := newTestTokenService("secret-b")

	token, err := minting.Generate(models.Principal{ID: uuid.New(), Role: types.RoleAdmin}, time.Minute)
	require.NoError(t, err)

	_, err = checking.RoleCheck(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRoleCheck_Garbage(t *testing.T) {
	svc := newTestTokenService("test-secret")

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		_, err := svc.RoleCheck(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
}
