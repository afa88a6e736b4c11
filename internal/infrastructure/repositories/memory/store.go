package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"livestream/internal/core/domain"
	"livestream/internal/core/ports"

	"github.com/google/uuid"
)

// Store keeps streams, users, subscriptions and viewers in process memory.
// Streams and Users expose it through the two repository contracts.
type Store struct {
	mu      sync.RWMutex
	streams map[domain.StreamID]*domain.Stream
	users   map[domain.UserID]*domain.User
	viewers map[domain.StreamID]map[domain.UserID]struct{}
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		streams: make(map[domain.StreamID]*domain.Stream),
		users:   make(map[domain.UserID]*domain.User),
		viewers: make(map[domain.StreamID]map[domain.UserID]struct{}),
		now:     time.Now,
	}
}

func (s *Store) Streams() ports.StreamRepository { return &MemoryStreamRepository{store: s} }
func (s *Store) Users() ports.UserRepository     { return &MemoryUserRepository{store: s} }

// withStreamer returns a detached copy of st with its owner attached.
// Caller holds at least the read lock.
func (s *Store) withStreamer(st *domain.Stream) *domain.Stream {
	cp := *st
	if u, ok := s.users[st.Owner]; ok {
		cp.Streamer = copyUser(u)
	}
	return &cp
}

// checkAppInstance rejects st when another live stream holds its
// appInstance. Caller holds the write lock.
func (s *Store) checkAppInstance(st *domain.Stream) error {
	if !st.Live {
		return nil
	}
	for _, other := range s.streams {
		if st.SharesRoomWith(other) {
			return domain.NewAppInstanceInUseError(st.AppInstance)
		}
	}
	return nil
}

func copyUser(u *domain.User) *domain.User {
	cp := *u
	cp.Subscribers = append([]domain.UserID(nil), u.Subscribers...)
	return &cp
}

type MemoryStreamRepository struct {
	store *Store
}

func (r *MemoryStreamRepository) Create(ctx context.Context, owner domain.UserID, attrs domain.StreamAttributes) (*domain.Stream, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[owner]; !ok {
		return nil, domain.ErrUserNotFound
	}

	stream := domain.NewStream(domain.StreamID(uuid.New().String()), owner, attrs, s.now())
	if err := stream.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkAppInstance(stream); err != nil {
		return nil, err
	}

	s.streams[stream.ID] = stream
	return s.withStreamer(stream), nil
}

func (r *MemoryStreamRepository) GetByID(ctx context.Context, id domain.StreamID) (*domain.Stream, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream, ok := s.streams[id]
	if !ok {
		return nil, domain.ErrStreamNotFound
	}
	return s.withStreamer(stream), nil
}

func (r *MemoryStreamRepository) List(ctx context.Context, filters domain.StreamFilters) ([]*domain.Stream, error) {
	s := r.store
	filters = filters.Normalize()

	s.mu.RLock()
	result := make([]*domain.Stream, 0, len(s.streams))
	for _, stream := range s.streams {
		if filters.Matches(stream) {
			result = append(result, s.withStreamer(stream))
		}
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return filters.Less(result[i], result[j]) })
	return filters.Page(result), nil
}

func (r *MemoryStreamRepository) ListFromSubscriptions(ctx context.Context, subscriber domain.UserID) ([]*domain.Stream, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.users[subscriber]; !ok {
		return nil, domain.ErrUserNotFound
	}

	var result []*domain.Stream
	for _, stream := range s.streams {
		if owner, ok := s.users[stream.Owner]; ok && owner.HasSubscriber(subscriber) {
			result = append(result, s.withStreamer(stream))
		}
	}

	order := domain.StreamFilters{}.Normalize()
	sort.Slice(result, func(i, j int) bool { return order.Less(result[i], result[j]) })
	return result, nil
}

func (r *MemoryStreamRepository) Update(ctx context.Context, id domain.StreamID, updates domain.StreamUpdates) (*domain.Stream, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.streams[id]
	if !ok {
		return nil, domain.ErrStreamNotFound
	}

	updated := *stream
	if err := updates.ApplyTo(&updated, s.now()); err != nil {
		return nil, err
	}
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkAppInstance(&updated); err != nil {
		return nil, err
	}

	s.streams[id] = &updated
	return s.withStreamer(&updated), nil
}

func (r *MemoryStreamRepository) UpdateTotalViews(ctx context.Context, id domain.StreamID) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.streams[id]
	if !ok {
		return domain.ErrStreamNotFound
	}
	stream.TotalViewers = len(s.viewers[id])
	return nil
}

func (r *MemoryStreamRepository) RecordView(ctx context.Context, id domain.StreamID, viewer domain.UserID) error {
	if strings.TrimSpace(string(viewer)) == "" {
		return &domain.InvalidFieldError{Field: "userId", Message: "userId is required"}
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.streams[id]; !ok {
		return domain.ErrStreamNotFound
	}
	if s.viewers[id] == nil {
		s.viewers[id] = make(map[domain.UserID]struct{})
	}
	s.viewers[id][viewer] = struct{}{}
	return nil
}

func (r *MemoryStreamRepository) Delete(ctx context.Context, id domain.StreamID) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.streams[id]; !ok {
		return false, nil
	}
	delete(s.streams, id)
	delete(s.viewers, id)
	return true, nil
}

type MemoryUserRepository struct {
	store *Store
}

func (r *MemoryUserRepository) Create(ctx context.Context, attrs domain.UserAttributes) (*domain.User, error) {
	attrs.Username = strings.TrimSpace(attrs.Username)
	if err := attrs.Validate(); err != nil {
		return nil, err
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Username, attrs.Username) {
			return nil, domain.ErrUserExists
		}
	}

	user := &domain.User{
		ID:        domain.UserID(uuid.New().String()),
		Username:  attrs.Username,
		Email:     attrs.Email,
		CreatedAt: s.now(),
	}
	s.users[user.ID] = user
	return copyUser(user), nil
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return copyUser(u), nil
}

func (r *MemoryUserRepository) AddSubscriber(ctx context.Context, streamer, subscriber domain.UserID) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[streamer]
	if !ok {
		return domain.ErrUserNotFound
	}
	if _, ok := s.users[subscriber]; !ok {
		return domain.ErrUserNotFound
	}
	if !u.HasSubscriber(subscriber) {
		u.Subscribers = append(u.Subscribers, subscriber)
	}
	return nil
}
