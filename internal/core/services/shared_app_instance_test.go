package services

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"livestream/internal/core/domain"
	"livestream/internal/core/ports"
	"livestream/internal/infrastructure/chat"
	"livestream/internal/infrastructure/repositories/memory"
	"livestream/pkg/distributed"
	apperrors "livestream/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// legacyStreams serves records written before a live appInstance was
// exclusive, so two live streams may share one.
type legacyStreams struct {
	ports.StreamRepository

	mu      sync.Mutex
	streams map[domain.StreamID]*domain.Stream
}

func (l *legacyStreams) GetByID(ctx context.Context, id domain.StreamID) (*domain.Stream, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.streams[id]
	if !ok {
		return nil, domain.ErrStreamNotFound
	}
	cp := *st
	return &cp, nil
}

func (l *legacyStreams) List(ctx context.Context, filters domain.StreamFilters) ([]*domain.Stream, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*domain.Stream
	for _, st := range l.streams {
		if filters.Matches(st) {
			cp := *st
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (l *legacyStreams) UpdateTotalViews(ctx context.Context, id domain.StreamID) error {
	return nil
}

func (l *legacyStreams) Update(ctx context.Context, id domain.StreamID, updates domain.StreamUpdates) (*domain.Stream, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.streams[id]
	if !ok {
		return nil, domain.ErrStreamNotFound
	}
	if err := updates.ApplyTo(st, time.Now()); err != nil {
		return nil, err
	}
	cp := *st
	return &cp, nil
}

func newHubBackedService(t *testing.T, repo ports.StreamRepository) (ports.StreamService, *chat.Hub, *recordingMetrics) {
	t.Helper()
	logger := zap.NewNop().Sugar()
	hub := chat.NewHub(chat.Config{}, logger)
	hub.Run()
	t.Cleanup(func() { hub.Shutdown(context.Background()) })

	metrics := newRecordingMetrics()
	binding := NewChatRoomBinding(hub, hub, metrics, logger)
	return NewStreamService(repo, binding, nil, distributed.NewKeyedMutex(), metrics, logger), hub, metrics
}

func TestEndStream_SharedAppInstanceKeepsOtherRoom(t *testing.T) {
	ctx := context.Background()
	created := time.Now().Add(-time.Hour)
	repo := &legacyStreams{streams: map[domain.StreamID]*domain.Stream{
		"s1": {ID: "s1", Title: "a", AppInstance: "x1", Owner: "u1", Live: true, CreatedAt: created},
		"s2": {ID: "s2", Title: "b", AppInstance: "x1", Owner: "u2", Live: true, CreatedAt: created.Add(time.Minute)},
	}}
	svc, hub, metrics := newHubBackedService(t, repo)

	// s1 opens the room first, then s2 takes it over.
	require.Equal(t, 2, svc.CreateChatRoomsForLiveStreams(ctx))
	room, ok := hub.Room("x1")
	require.True(t, ok)
	require.Equal(t, domain.StreamID("s2"), room.StreamID)

	_, err := svc.EndStream(ctx, "u1", "s1")
	require.NoError(t, err)

	room, ok = hub.Room("x1")
	require.True(t, ok, "ending s1 leaves the room s2 holds")
	assert.Equal(t, domain.StreamID("s2"), room.StreamID)
	assert.Equal(t, 0, metrics.count("room_closed"))
	assert.Equal(t, 0, metrics.count("room_failed:close"))

	_, err = svc.EndStream(ctx, "u2", "s2")
	require.NoError(t, err)

	_, ok = hub.Room("x1")
	assert.False(t, ok)
	assert.Equal(t, 1, metrics.count("room_closed"))
}

func TestCreateStream_SecondLiveStreamOnAppInstanceIsRejected(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc, hub, metrics := newHubBackedService(t, store.Streams())

	alex, err := store.Users().Create(ctx, domain.UserAttributes{Username: "Alex Chan"})
	require.NoError(t, err)
	sam, err := store.Users().Create(ctx, domain.UserAttributes{Username: "Sam Lee"})
	require.NoError(t, err)

	first, err := svc.CreateStream(ctx, alex.ID, domain.StreamAttributes{Title: "first", AppInstance: "x1"})
	require.NoError(t, err)

	_, err = svc.CreateStream(ctx, sam.ID, domain.StreamAttributes{Title: "second", AppInstance: "x1"})
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeInvalidField, appErr.Code)
	assert.Equal(t, "appInstance", appErr.Context["field"])

	room, ok := hub.Room("x1")
	require.True(t, ok)
	assert.Equal(t, first.StreamID, room.StreamID)
	assert.Equal(t, 1, metrics.count("room_opened"))

	_, err = svc.EndStream(ctx, alex.ID, first.StreamID)
	require.NoError(t, err)
	_, ok = hub.Room("x1")
	assert.False(t, ok)

	second, err := svc.CreateStream(ctx, sam.ID, domain.StreamAttributes{Title: "second", AppInstance: "x1"})
	require.NoError(t, err, "an ended stream frees its appInstance")
	room, ok = hub.Room("x1")
	require.True(t, ok)
	assert.Equal(t, second.StreamID, room.StreamID)
}
