package services

import (
	"context"
	"errors"

	"livestream/internal/core/domain"
	"livestream/internal/core/ports"
	"livestream/pkg/tracing"

	"go.uber.org/zap"
)

// ChatRoomBinding ties the chat room lifecycle to the stream lifecycle.
// Chat is a soft dependency: every failure here is logged and swallowed so
// that a committed stream transition never fails because of chat.
type ChatRoomBinding struct {
	rooms     ports.ChatRooms
	readiness ports.Readiness
	metrics   ports.LifecycleMetrics
	logger    *zap.SugaredLogger
}

func NewChatRoomBinding(
	rooms ports.ChatRooms,
	readiness ports.Readiness,
	metrics ports.LifecycleMetrics,
	logger *zap.SugaredLogger,
) *ChatRoomBinding {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &ChatRoomBinding{
		rooms:     rooms,
		readiness: readiness,
		metrics:   metrics,
		logger:    logger,
	}
}

// OpenRoomFor creates the room keyed by the stream's appInstance. It
// reports whether the stream now holds a room.
func (b *ChatRoomBinding) OpenRoomFor(ctx context.Context, stream *domain.Stream) bool {
	_, span := tracing.TraceChatRoom(ctx, "open", stream.AppInstance)
	defer span.End()

	room, created, err := b.rooms.CreateNewRoom(stream.AppInstance, stream.ID)
	if err == nil && room == nil {
		err = domain.ErrRoomNotFound
	}
	if err != nil {
		b.metrics.ChatRoomFailed("open")
		b.logger.Errorw("Failed to create chat room",
			"stream_id", stream.ID,
			"app_instance", stream.AppInstance,
			"error", err)
		return false
	}

	if created {
		b.metrics.ChatRoomOpened()
	}
	b.logger.Infow("Chat room ready",
		"stream_id", room.StreamID,
		"app_instance", room.AppInstance,
		"created", created)
	return true
}

// CloseRoomFor closes the room the stream holds once the chat subsystem is
// ready; before that it only logs. A room held by another stream is left
// open.
func (b *ChatRoomBinding) CloseRoomFor(ctx context.Context, appInstance string, streamID domain.StreamID) {
	_, span := tracing.TraceChatRoom(ctx, "close", appInstance)
	defer span.End()

	if b.readiness == nil || !b.readiness.IsReady() {
		b.logger.Warnw("Chat subsystem not ready, skipping room close",
			"stream_id", streamID,
			"app_instance", appInstance)
		return
	}

	err := b.rooms.CloseRoom(appInstance, streamID)
	switch {
	case errors.Is(err, domain.ErrRoomNotOwned):
		b.logger.Warnw("Chat room held by another stream, leaving it open",
			"stream_id", streamID,
			"app_instance", appInstance)
		return
	case err != nil:
		b.metrics.ChatRoomFailed("close")
		b.logger.Errorw("Failed to close chat room",
			"stream_id", streamID,
			"app_instance", appInstance,
			"error", err)
		return
	}

	b.metrics.ChatRoomClosed()
	b.logger.Infow("Chat room closed", "stream_id", streamID, "app_instance", appInstance)
}
