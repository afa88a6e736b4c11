package ports

import (
	"context"

	"livestream/internal/core/domain"
)

type StreamService interface {
	CreateStream(ctx context.Context, userID domain.UserID, attrs domain.StreamAttributes) (*domain.StreamView, error)
	GetStreamByID(ctx context.Context, id domain.StreamID) (*domain.StreamView, error)
	ListStreams(ctx context.Context, userID domain.UserID, filters domain.StreamFilters) ([]*domain.StreamView, error)
	ListSubscribedStreams(ctx context.Context, userID domain.UserID) ([]*domain.StreamView, error)
	UpdateStream(ctx context.Context, id domain.StreamID, updates domain.StreamUpdates) (*domain.StreamView, error)
	EndStream(ctx context.Context, callerID domain.UserID, id domain.StreamID) (string, error)
	DeleteStream(ctx context.Context, id domain.StreamID) error
	StopStream(ctx context.Context, appName, appInstance string, id domain.StreamID) error
	RecordView(ctx context.Context, id domain.StreamID, viewer domain.UserID) error
	CreateChatRoomsForLiveStreams(ctx context.Context) int
}

type UserService interface {
	CreateUser(ctx context.Context, attrs domain.UserAttributes) (*domain.User, error)
	Subscribe(ctx context.Context, subscriber, streamer domain.UserID) error
}

// ChatRooms is the real-time chat subsystem. Rooms are keyed by appInstance
// and bound to one stream.
type ChatRooms interface {
	// CreateNewRoom reports created false when streamID already held the room.
	CreateNewRoom(appInstance string, streamID domain.StreamID) (room *domain.ChatRoom, created bool, err error)
	// CloseRoom fails with domain.ErrRoomNotOwned when another stream holds the room.
	CloseRoom(appInstance string, streamID domain.StreamID) error
}

// Readiness reports whether a subsystem accepts requests.
type Readiness interface {
	IsReady() bool
}

// MediaController issues commands to the media server.
type MediaController interface {
	StopStream(ctx context.Context, appName, appInstance string, streamID domain.StreamID) error
}

// Locker hands out mutual-exclusion tokens keyed by name.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// LifecycleMetrics receives stream lifecycle events.
type LifecycleMetrics interface {
	StreamCreated()
	StreamEnded(path string)
	StreamDeleted()
	ChatRoomOpened()
	ChatRoomClosed()
	ChatRoomFailed(op string)
	MediaStopFailed()
}
