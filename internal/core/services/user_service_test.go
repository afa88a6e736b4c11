package services

import (
	"context"
	"testing"

	"livestream/internal/core/domain"
	"livestream/internal/infrastructure/repositories/memory"
	apperrors "livestream/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestUserService_CreateUser(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewUserService(store.Users(), zap.NewNop().Sugar())

	u, err := svc.CreateUser(ctx, domain.UserAttributes{Username: "Alex Chan", Email: "alex@gmail.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "Alex Chan", u.Username)

	_, err = svc.CreateUser(ctx, domain.UserAttributes{Username: "alex chan"})
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeInvalidField, appErr.Code)
	assert.Equal(t, "username", appErr.Context["field"])

	_, err = svc.CreateUser(ctx, domain.UserAttributes{Username: "ok name", Email: "not-an-email"})
	appErr = apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, "email", appErr.Context["field"])
}

func TestUserService_Subscribe(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewUserService(store.Users(), zap.NewNop().Sugar())

	alex, err := svc.CreateUser(ctx, domain.UserAttributes{Username: "Alex Chan"})
	require.NoError(t, err)
	sam, err := svc.CreateUser(ctx, domain.UserAttributes{Username: "Sam Lee"})
	require.NoError(t, err)

	require.NoError(t, svc.Subscribe(ctx, sam.ID, alex.ID))
	require.NoError(t, svc.Subscribe(ctx, sam.ID, alex.ID), "subscribing twice is a no-op")

	got, err := store.Users().GetByID(ctx, alex.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{sam.ID}, got.Subscribers)

	assert.True(t, apperrors.HasCode(svc.Subscribe(ctx, alex.ID, alex.ID), apperrors.ErrCodeInvalidInput))
	assert.True(t, apperrors.HasCode(svc.Subscribe(ctx, "", alex.ID), apperrors.ErrCodeInvalidInput))
	assert.True(t, apperrors.HasCode(svc.Subscribe(ctx, sam.ID, "ghost"), apperrors.ErrCodeNotFound))
	assert.True(t, apperrors.HasCode(svc.Subscribe(ctx, "ghost", alex.ID), apperrors.ErrCodeNotFound))
}
