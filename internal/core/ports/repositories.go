package ports

import (
	"context"

	"livestream/internal/core/domain"
)

// StreamRepository is the storage contract for streams. Implementations
// validate attributes and return typed errors: domain.ErrStreamNotFound,
// domain.ErrUserNotFound, *domain.InvalidFieldError and
// *domain.InvalidColumnError.
type StreamRepository interface {
	Create(ctx context.Context, owner domain.UserID, attrs domain.StreamAttributes) (*domain.Stream, error)
	GetByID(ctx context.Context, id domain.StreamID) (*domain.Stream, error)
	List(ctx context.Context, filters domain.StreamFilters) ([]*domain.Stream, error)
	ListFromSubscriptions(ctx context.Context, subscriber domain.UserID) ([]*domain.Stream, error)
	Update(ctx context.Context, id domain.StreamID, updates domain.StreamUpdates) (*domain.Stream, error)
	UpdateTotalViews(ctx context.Context, id domain.StreamID) error
	RecordView(ctx context.Context, id domain.StreamID, viewer domain.UserID) error
	Delete(ctx context.Context, id domain.StreamID) (bool, error)
}

type UserRepository interface {
	Create(ctx context.Context, attrs domain.UserAttributes) (*domain.User, error)
	GetByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	AddSubscriber(ctx context.Context, streamer, subscriber domain.UserID) error
}
