package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"livestream/internal/core/domain"
	"livestream/internal/core/ports"
	apperrors "livestream/pkg/errors"
	"livestream/pkg/tracing"

	"go.uber.org/zap"
)

// EndStreamSuccess is the marker returned by a successful EndStream.
const EndStreamSuccess = "Success"

const (
	endPathOwner = "end"
	endPathMedia = "stop"
)

// restoreFilters selects the streams whose chat rooms are reopened at startup.
var restoreFilters = domain.StreamFilters{
	State: domain.StreamStateLive,
	Sort:  domain.SortByTitle,
	Order: domain.OrderDesc,
}

type streamService struct {
	streams ports.StreamRepository
	chat    *ChatRoomBinding
	media   ports.MediaController
	locker  ports.Locker
	metrics ports.LifecycleMetrics
	logger  *zap.SugaredLogger
}

func NewStreamService(
	streams ports.StreamRepository,
	chat *ChatRoomBinding,
	media ports.MediaController,
	locker ports.Locker,
	metrics ports.LifecycleMetrics,
	logger *zap.SugaredLogger,
) ports.StreamService {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &streamService{
		streams: streams,
		chat:    chat,
		media:   media,
		locker:  locker,
		metrics: metrics,
		logger:  logger,
	}
}

func (s *streamService) CreateStream(ctx context.Context, userID domain.UserID, attrs domain.StreamAttributes) (*domain.StreamView, error) {
	ctx, span := tracing.TraceStreamOperation(ctx, "create", "")
	defer span.End()

	if attrs.Live == nil || *attrs.Live {
		release, err := s.lockAppInstance(ctx, attrs.AppInstance)
		if err != nil {
			return nil, s.fail(ctx, "create", err)
		}
		defer release()
	}

	stream, err := s.streams.Create(ctx, userID, attrs)
	if err != nil {
		return nil, s.fail(ctx, "create", translateStorageError(err))
	}

	s.metrics.StreamCreated()
	s.logger.Infow("Stream created",
		"stream_id", stream.ID,
		"user_id", userID,
		"app_instance", stream.AppInstance)

	if stream.Live {
		s.chat.OpenRoomFor(ctx, stream)
	}

	return domain.FormatStreamView(stream, domain.FormatStream), nil
}

func (s *streamService) GetStreamByID(ctx context.Context, id domain.StreamID) (*domain.StreamView, error) {
	ctx, span := tracing.TraceStreamOperation(ctx, "get", string(id))
	defer span.End()

	stream, err := s.streams.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "get", translateStorageError(err))
	}
	return domain.FormatStreamView(stream, domain.FormatView), nil
}

// ListStreams never exposes subscriber lists. With a caller, each streamer
// block carries whether the caller subscribes to it.
func (s *streamService) ListStreams(ctx context.Context, userID domain.UserID, filters domain.StreamFilters) ([]*domain.StreamView, error) {
	ctx, span := tracing.TraceStreamOperation(ctx, "list", "")
	defer span.End()

	streams, err := s.streams.List(ctx, filters.Normalize())
	if err != nil {
		s.logger.Errorw("Failed to list streams", "filters", filters, "error", err)
		return nil, s.fail(ctx, "list", apperrors.NewUnknownError(fmt.Errorf("list streams: %w", err)))
	}
	if len(streams) == 0 {
		return nil, apperrors.NewNotFoundError("no streams found")
	}

	views := make([]*domain.StreamView, 0, len(streams))
	for _, stream := range streams {
		v := domain.FormatStreamView(stream, domain.FormatView)
		if userID != "" {
			v.MarkSubscription(userID)
		} else {
			v.StripSubscribers()
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *streamService) ListSubscribedStreams(ctx context.Context, userID domain.UserID) ([]*domain.StreamView, error) {
	ctx, span := tracing.TraceStreamOperation(ctx, "list_subscribed", "")
	defer span.End()

	streams, err := s.streams.ListFromSubscriptions(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, apperrors.NewNotFoundError("user not found")
		}
		s.logger.Errorw("Failed to list subscribed streams", "user_id", userID, "error", err)
		return nil, s.fail(ctx, "list_subscribed", apperrors.NewUnknownError(fmt.Errorf("list subscribed streams: %w", err)))
	}
	if len(streams) == 0 {
		return nil, apperrors.NewNotFoundError("no streams found")
	}

	views := make([]*domain.StreamView, 0, len(streams))
	for _, stream := range streams {
		v := domain.FormatStreamView(stream, domain.FormatView)
		v.MarkSubscription(userID)
		views = append(views, v)
	}
	return views, nil
}

// UpdateStream applies a partial update. A change of the live flag or of
// the appInstance of a live stream moves the chat room along with it.
func (s *streamService) UpdateStream(ctx context.Context, id domain.StreamID, updates domain.StreamUpdates) (*domain.StreamView, error) {
	ctx, span := tracing.TraceStreamOperation(ctx, "update", string(id))
	defer span.End()

	release, err := s.lock(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "update", err)
	}
	defer release()

	before, err := s.streams.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "update", translateStorageError(err))
	}

	// Storage reports malformed updates; only a well formed one that takes
	// over an appInstance needs the claim.
	target := *before
	if updates.ApplyTo(&target, time.Now()) == nil && target.Live &&
		(!before.Live || target.AppInstance != before.AppInstance) {
		release, err := s.lockAppInstance(ctx, target.AppInstance)
		if err != nil {
			return nil, s.fail(ctx, "update", err)
		}
		defer release()
	}

	after, err := s.streams.Update(ctx, id, updates)
	if err != nil {
		return nil, s.fail(ctx, "update", translateStorageError(err))
	}

	roomMoved := before.Live && after.Live && before.AppInstance != after.AppInstance
	if before.Live && (!after.Live || roomMoved) {
		s.chat.CloseRoomFor(ctx, before.AppInstance, id)
	}
	if after.Live && (!before.Live || roomMoved) {
		s.chat.OpenRoomFor(ctx, after)
	}

	return domain.FormatStreamView(after, domain.FormatStream), nil
}

// EndStream lets the owner take a stream off air. Ending an already ended
// stream succeeds without touching chat again.
func (s *streamService) EndStream(ctx context.Context, callerID domain.UserID, id domain.StreamID) (string, error) {
	ctx, span := tracing.TraceStreamOperation(ctx, "end", string(id))
	defer span.End()

	release, err := s.lock(ctx, id)
	if err != nil {
		return "", s.fail(ctx, "end", err)
	}
	defer release()

	stream, err := s.streams.GetByID(ctx, id)
	if err != nil {
		return "", s.fail(ctx, "end", translateStorageError(err))
	}

	if stream.Owner != callerID {
		s.logger.Warnw("Rejected end of stream by non-owner",
			"stream_id", id,
			"caller_id", callerID,
			"owner_id", stream.Owner)
		return "", s.fail(ctx, "end", apperrors.NewNotAuthorisedError(domain.ErrNotStreamOwner.Error()))
	}

	if !stream.Live {
		return EndStreamSuccess, nil
	}

	if err := s.streams.UpdateTotalViews(ctx, id); err != nil {
		return "", s.fail(ctx, "end", translateStorageError(err))
	}

	if _, err := s.streams.Update(ctx, id, domain.StreamUpdates{domain.ColumnLive: false}); err != nil {
		return "", s.fail(ctx, "end", translateStorageError(err))
	}

	s.chat.CloseRoomFor(ctx, stream.AppInstance, id)

	s.metrics.StreamEnded(endPathOwner)
	s.logger.Infow("Stream ended", "stream_id", id, "user_id", callerID)
	return EndStreamSuccess, nil
}

// DeleteStream removes the stream and, if it was still live, its room.
func (s *streamService) DeleteStream(ctx context.Context, id domain.StreamID) error {
	ctx, span := tracing.TraceStreamOperation(ctx, "delete", string(id))
	defer span.End()

	release, err := s.lock(ctx, id)
	if err != nil {
		return s.fail(ctx, "delete", err)
	}
	defer release()

	stream, err := s.streams.GetByID(ctx, id)
	if err != nil {
		return s.fail(ctx, "delete", translateStorageError(err))
	}

	deleted, err := s.streams.Delete(ctx, id)
	if err != nil {
		return s.fail(ctx, "delete", translateStorageError(err))
	}
	if !deleted {
		return s.fail(ctx, "delete", apperrors.NewNotFoundError("stream not found"))
	}

	if stream.Live {
		s.chat.CloseRoomFor(ctx, stream.AppInstance, id)
	}

	s.metrics.StreamDeleted()
	s.logger.Infow("Stream deleted", "stream_id", id)
	return nil
}

// StopStream is the media-driven path into the ended state. The supplied
// appInstance must match the stream's before anything is changed.
func (s *streamService) StopStream(ctx context.Context, appName, appInstance string, id domain.StreamID) error {
	ctx, span := tracing.TraceStreamOperation(ctx, "stop", string(id))
	defer span.End()

	release, err := s.lock(ctx, id)
	if err != nil {
		return s.fail(ctx, "stop", err)
	}
	defer release()

	stream, err := s.streams.GetByID(ctx, id)
	if err != nil {
		return s.fail(ctx, "stop", translateStorageError(err))
	}

	if stream.AppInstance != appInstance {
		s.logger.Warnw("Stop request appInstance mismatch",
			"stream_id", id,
			"app_instance", appInstance,
			"expected", stream.AppInstance)
		return s.fail(ctx, "stop", apperrors.NewAppInstanceMismatchError(domain.ErrAppInstanceMismatch))
	}

	if stream.Live {
		if _, err := s.streams.Update(ctx, id, domain.StreamUpdates{domain.ColumnLive: false}); err != nil {
			return s.fail(ctx, "stop", translateStorageError(err))
		}
		s.chat.CloseRoomFor(ctx, appInstance, id)
		s.metrics.StreamEnded(endPathMedia)
	}

	if err := s.media.StopStream(ctx, appName, appInstance, id); err != nil {
		s.metrics.MediaStopFailed()
		s.logger.Errorw("Media server failed to stop stream",
			"stream_id", id,
			"app_name", appName,
			"app_instance", appInstance,
			"error", err)
		return s.fail(ctx, "stop", apperrors.NewUpstreamError("media server failed to stop stream", err))
	}

	s.logger.Infow("Stream stopped", "stream_id", id, "app_instance", appInstance)
	return nil
}

func (s *streamService) RecordView(ctx context.Context, id domain.StreamID, viewer domain.UserID) error {
	ctx, span := tracing.TraceStreamOperation(ctx, "view", string(id))
	defer span.End()

	if err := s.streams.RecordView(ctx, id, viewer); err != nil {
		return s.fail(ctx, "view", translateStorageError(err))
	}
	return nil
}

// CreateChatRoomsForLiveStreams reopens a room for every live stream and
// returns how many rooms are open afterwards. Run once storage is ready.
func (s *streamService) CreateChatRoomsForLiveStreams(ctx context.Context) int {
	ctx, span := tracing.TraceStreamOperation(ctx, "restore_chat_rooms", "")
	defer span.End()

	streams, err := s.streams.List(ctx, restoreFilters.Normalize())
	if err != nil {
		s.logger.Errorw("Failed to list live streams for chat room restore", "error", err)
		tracing.RecordError(ctx, err)
		return 0
	}

	opened := 0
	for _, stream := range streams {
		if s.chat.OpenRoomFor(ctx, stream) {
			opened++
		}
	}

	s.logger.Infow("Restored chat rooms for live streams",
		"live_streams", len(streams),
		"rooms_opened", opened)
	return opened
}

func (s *streamService) lock(ctx context.Context, id domain.StreamID) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	release, err := s.locker.Lock(ctx, "stream:"+string(id))
	if err != nil {
		s.logger.Errorw("Failed to acquire stream lock", "stream_id", id, "error", err)
		return nil, apperrors.NewServiceUnavailableError("stream is busy, try again", err)
	}
	return release, nil
}

// lockAppInstance serialises streams going live on the same appInstance so
// that the storage check for a live holder cannot race. It is never held
// while taking a stream lock.
func (s *streamService) lockAppInstance(ctx context.Context, appInstance string) (func(), error) {
	if s.locker == nil || appInstance == "" {
		return func() {}, nil
	}
	release, err := s.locker.Lock(ctx, "appInstance:"+appInstance)
	if err != nil {
		s.logger.Errorw("Failed to acquire appInstance lock", "app_instance", appInstance, "error", err)
		return nil, apperrors.NewServiceUnavailableError("appInstance is busy, try again", err)
	}
	return release, nil
}

func (s *streamService) fail(ctx context.Context, op string, err error) error {
	tracing.RecordError(ctx, err)
	if apperrors.HasCode(err, apperrors.ErrCodeUnknown) {
		s.logger.Errorw("Stream operation failed", "op", op, "error", err)
	}
	return err
}

// translateStorageError maps the storage contract's typed errors onto the
// caller facing taxonomy.
func translateStorageError(err error) error {
	var fieldErr *domain.InvalidFieldError
	var columnErr *domain.InvalidColumnError

	switch {
	case errors.As(err, &fieldErr):
		return apperrors.NewInvalidFieldError(fieldErr.Message, fieldErr.Field)
	case errors.As(err, &columnErr):
		return apperrors.NewInvalidColumnError(columnErr.Column, err)
	case errors.Is(err, domain.ErrStreamNotFound):
		return apperrors.NewNotFoundError("stream not found")
	case errors.Is(err, domain.ErrUserNotFound):
		return apperrors.NewNotFoundError("user not found")
	case errors.Is(err, domain.ErrUserExists):
		return apperrors.NewInvalidFieldError("username is already taken", "username")
	case apperrors.IsAppError(err):
		return err
	default:
		return apperrors.NewUnknownError(err)
	}
}
