package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"livestream/internal/core/domain"
	"livestream/internal/core/ports"
	"livestream/internal/infrastructure/repositories/memory"
	apperrors "livestream/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCachedStreamService(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	logger := zap.NewNop().Sugar()
	rooms := new(MockChatRooms)
	rooms.On("CreateNewRoom", mock.Anything, mock.Anything).Return(true, nil)

	base := NewStreamService(store.Streams(), NewChatRoomBinding(rooms, nil, nil, logger), nil, nil, nil, logger)
	svc := NewCachedStreamService(base, time.Minute)
	t.Cleanup(svc.(*CachedStreamService).Stop)

	owner, err := store.Users().Create(ctx, domain.UserAttributes{Username: "Alex Chan"})
	require.NoError(t, err)
	created, err := svc.CreateStream(ctx, owner.ID, domain.StreamAttributes{Title: "first", AppInstance: "x1"})
	require.NoError(t, err)

	got, err := svc.GetStreamByID(ctx, created.StreamID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Title)

	// A write that bypasses the service is not seen until the entry expires.
	_, err = store.Streams().Update(ctx, created.StreamID, domain.StreamUpdates{"title": "direct"})
	require.NoError(t, err)
	got, err = svc.GetStreamByID(ctx, created.StreamID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Title)

	_, err = svc.UpdateStream(ctx, created.StreamID, domain.StreamUpdates{"title": "second"})
	require.NoError(t, err)
	got, err = svc.GetStreamByID(ctx, created.StreamID)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Title)

	require.NoError(t, svc.DeleteStream(ctx, created.StreamID))
	_, err = svc.GetStreamByID(ctx, created.StreamID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}

func TestCachedStreamService_Disabled(t *testing.T) {
	base := NewStreamService(memory.NewStore().Streams(), NewChatRoomBinding(new(MockChatRooms), nil, nil, zap.NewNop().Sugar()), nil, nil, nil, zap.NewNop().Sugar())
	assert.Same(t, base, NewCachedStreamService(base, 0))
}

// heldRead pauses the first GetStreamByID after it has read storage, until
// release is closed.
type heldRead struct {
	ports.StreamService
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (h *heldRead) GetStreamByID(ctx context.Context, id domain.StreamID) (*domain.StreamView, error) {
	v, err := h.StreamService.GetStreamByID(ctx, id)
	h.once.Do(func() {
		close(h.read)
		<-h.release
	})
	return v, err
}

func TestCachedStreamService_ReadOverlappingUpdateIsNotCached(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	logger := zap.NewNop().Sugar()
	rooms := new(MockChatRooms)
	rooms.On("CreateNewRoom", mock.Anything, mock.Anything).Return(true, nil)

	base := NewStreamService(store.Streams(), NewChatRoomBinding(rooms, nil, nil, logger), nil, nil, nil, logger)
	owner, err := store.Users().Create(ctx, domain.UserAttributes{Username: "Alex Chan"})
	require.NoError(t, err)
	created, err := base.CreateStream(ctx, owner.ID, domain.StreamAttributes{Title: "first", AppInstance: "x1"})
	require.NoError(t, err)

	held := &heldRead{StreamService: base, read: make(chan struct{}), release: make(chan struct{})}
	svc := NewCachedStreamService(held, time.Minute)
	t.Cleanup(svc.(*CachedStreamService).Stop)

	inFlight := make(chan *domain.StreamView, 1)
	go func() {
		v, _ := svc.GetStreamByID(ctx, created.StreamID)
		inFlight <- v
	}()

	<-held.read
	_, err = svc.UpdateStream(ctx, created.StreamID, domain.StreamUpdates{"title": "second"})
	require.NoError(t, err)
	close(held.release)

	stale := <-inFlight
	require.NotNil(t, stale)
	assert.Equal(t, "first", stale.Title)

	got, err := svc.GetStreamByID(ctx, created.StreamID)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Title, "the read that overlapped the update was not cached")
}
