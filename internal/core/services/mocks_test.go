package services

import (
	"context"
	"sync"

	"livestream/internal/core/domain"

	"github.com/stretchr/testify/mock"
)

type MockChatRooms struct {
	mock.Mock
}

// CreateNewRoom is stubbed with Return(created bool, err error).
func (m *MockChatRooms) CreateNewRoom(appInstance string, streamID domain.StreamID) (*domain.ChatRoom, bool, error) {
	args := m.Called(appInstance, streamID)
	if err := args.Error(1); err != nil {
		return nil, false, err
	}
	return &domain.ChatRoom{AppInstance: appInstance, StreamID: streamID}, args.Bool(0), nil
}

func (m *MockChatRooms) CloseRoom(appInstance string, streamID domain.StreamID) error {
	return m.Called(appInstance, streamID).Error(0)
}

type MockReadiness struct {
	mock.Mock
}

func (m *MockReadiness) IsReady() bool {
	return m.Called().Bool(0)
}

type MockMediaController struct {
	mock.Mock
}

func (m *MockMediaController) StopStream(ctx context.Context, appName, appInstance string, streamID domain.StreamID) error {
	return m.Called(ctx, appName, appInstance, streamID).Error(0)
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Lock(ctx context.Context, key string) (func(), error) {
	args := m.Called(ctx, key)
	if err := args.Error(1); err != nil {
		return nil, err
	}
	return func() {}, nil
}

// recordingMetrics counts lifecycle events by name.
type recordingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counts: make(map[string]int)}
}

func (r *recordingMetrics) inc(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[name]++
}

func (r *recordingMetrics) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name]
}

func (r *recordingMetrics) StreamCreated()          { r.inc("created") }
func (r *recordingMetrics) StreamEnded(path string) { r.inc("ended:" + path) }
func (r *recordingMetrics) StreamDeleted()          { r.inc("deleted") }
func (r *recordingMetrics) ChatRoomOpened()         { r.inc("room_opened") }
func (r *recordingMetrics) ChatRoomClosed()         { r.inc("room_closed") }
func (r *recordingMetrics) ChatRoomFailed(op string) {
	r.inc("room_failed:" + op)
}
func (r *recordingMetrics) MediaStopFailed() { r.inc("media_failed") }
