package services

import (
	"context"
	"time"

	"livestream/internal/core/domain"
	"livestream/internal/core/ports"
	"livestream/pkg/cache"
)

const streamCachePrefix = "stream:"

// CachedStreamService serves GetStreamByID from a short-lived cache. Every
// write through the service drops the stream's entry before and after it
// runs.
type CachedStreamService struct {
	ports.StreamService
	cache *cache.Cache[*domain.StreamView]
}

// NewCachedStreamService wraps base. A non-positive ttl returns base as is.
func NewCachedStreamService(base ports.StreamService, ttl time.Duration) ports.StreamService {
	if ttl <= 0 {
		return base
	}
	return &CachedStreamService{
		StreamService: base,
		cache:         cache.New[*domain.StreamView](ttl),
	}
}

func (s *CachedStreamService) GetStreamByID(ctx context.Context, id domain.StreamID) (*domain.StreamView, error) {
	view, err := s.cache.GetOrSet(ctx, streamCachePrefix+string(id), func(ctx context.Context) (*domain.StreamView, error) {
		return s.StreamService.GetStreamByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	cp := *view
	return &cp, nil
}

func (s *CachedStreamService) UpdateStream(ctx context.Context, id domain.StreamID, updates domain.StreamUpdates) (*domain.StreamView, error) {
	s.invalidate(id)
	defer s.invalidate(id)
	return s.StreamService.UpdateStream(ctx, id, updates)
}

func (s *CachedStreamService) EndStream(ctx context.Context, callerID domain.UserID, id domain.StreamID) (string, error) {
	s.invalidate(id)
	defer s.invalidate(id)
	return s.StreamService.EndStream(ctx, callerID, id)
}

func (s *CachedStreamService) DeleteStream(ctx context.Context, id domain.StreamID) error {
	s.invalidate(id)
	defer s.invalidate(id)
	return s.StreamService.DeleteStream(ctx, id)
}

func (s *CachedStreamService) StopStream(ctx context.Context, appName, appInstance string, id domain.StreamID) error {
	s.invalidate(id)
	defer s.invalidate(id)
	return s.StreamService.StopStream(ctx, appName, appInstance, id)
}

// Stop releases the cache's cleanup goroutine.
func (s *CachedStreamService) Stop() {
	s.cache.Stop()
}

func (s *CachedStreamService) invalidate(id domain.StreamID) {
	s.cache.Delete(streamCachePrefix + string(id))
}
