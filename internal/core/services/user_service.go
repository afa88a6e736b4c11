package services

import (
	"context"

	"livestream/internal/core/domain"
	"livestream/internal/core/ports"
	apperrors "livestream/pkg/errors"

	"go.uber.org/zap"
)

type userService struct {
	users  ports.UserRepository
	logger *zap.SugaredLogger
}

func NewUserService(users ports.UserRepository, logger *zap.SugaredLogger) ports.UserService {
	return &userService{users: users, logger: logger}
}

func (s *userService) CreateUser(ctx context.Context, attrs domain.UserAttributes) (*domain.User, error) {
	user, err := s.users.Create(ctx, attrs)
	if err != nil {
		return nil, translateStorageError(err)
	}
	s.logger.Infow("User created", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Subscribe adds subscriber to the subscribers of streamer.
func (s *userService) Subscribe(ctx context.Context, subscriber, streamer domain.UserID) error {
	if subscriber == "" {
		return apperrors.NewInvalidInputError("subscriber id is required")
	}
	if subscriber == streamer {
		return apperrors.NewInvalidInputError("users cannot subscribe to themselves")
	}

	if err := s.users.AddSubscriber(ctx, streamer, subscriber); err != nil {
		return translateStorageError(err)
	}
	s.logger.Infow("Subscription added", "streamer_id", streamer, "subscriber_id", subscriber)
	return nil
}
