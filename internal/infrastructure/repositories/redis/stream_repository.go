package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"livestream/internal/core/domain"
	"livestream/internal/core/ports"
	"livestream/pkg/tracing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// maxTxRetries bounds optimistic WATCH retries on a contended stream key.
const maxTxRetries = 5

type RedisStreamRepository struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisStreamRepository(client *redis.Client) ports.StreamRepository {
	return &RedisStreamRepository{client: client, now: time.Now}
}

func (r *RedisStreamRepository) Create(ctx context.Context, owner domain.UserID, attrs domain.StreamAttributes) (*domain.Stream, error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, "redis", "create", "streams")
	defer span.End()

	exists, err := r.client.Exists(ctx, userKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check stream owner: %w", err)
	}
	if exists == 0 {
		return nil, domain.ErrUserNotFound
	}

	stream := domain.NewStream(domain.StreamID(uuid.New().String()), owner, attrs, r.now())
	if err := stream.Validate(); err != nil {
		return nil, err
	}

	data, err := marshalStream(stream)
	if err != nil {
		return nil, err
	}

	// The live index is watched so a stream going live on the same
	// appInstance concurrently aborts this transaction.
	txf := func(tx *redis.Tx) error {
		if stream.Live {
			if err := r.checkAppInstance(ctx, tx, stream); err != nil {
				return err
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, streamKey(stream.ID), data, 0)
			pipe.SAdd(ctx, allStreamsKey(), string(stream.ID))
			pipe.SAdd(ctx, userStreamsKey(owner), string(stream.ID))
			if stream.Live {
				pipe.SAdd(ctx, liveStreamsKey(), string(stream.ID))
			}
			return nil
		})
		return err
	}
	if err := r.watch(ctx, txf, liveStreamsKey()); err != nil {
		tracing.RecordError(ctx, err)
		var fieldErr *domain.InvalidFieldError
		if errors.As(err, &fieldErr) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to store stream in Redis: %w", err)
	}

	return r.withStreamers(ctx, []*domain.Stream{stream})[0], nil
}

func (r *RedisStreamRepository) GetByID(ctx context.Context, id domain.StreamID) (*domain.Stream, error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, "redis", "get", "streams")
	defer span.End()

	stream, err := r.load(ctx, r.client, id)
	if err != nil {
		return nil, err
	}
	return r.withStreamers(ctx, []*domain.Stream{stream})[0], nil
}

func (r *RedisStreamRepository) List(ctx context.Context, filters domain.StreamFilters) ([]*domain.Stream, error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, "redis", "list", "streams")
	defer span.End()

	filters = filters.Normalize()

	indexKey := allStreamsKey()
	if filters.State == domain.StreamStateLive {
		indexKey = liveStreamsKey()
	}
	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stream index: %w", err)
	}

	streams, err := r.loadMany(ctx, r.client, ids)
	if err != nil {
		return nil, err
	}

	matched := streams[:0]
	for _, st := range streams {
		if filters.Matches(st) {
			matched = append(matched, st)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return filters.Less(matched[i], matched[j]) })

	return r.withStreamers(ctx, filters.Page(matched)), nil
}

func (r *RedisStreamRepository) ListFromSubscriptions(ctx context.Context, subscriber domain.UserID) ([]*domain.Stream, error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, "redis", "list_subscribed", "streams")
	defer span.End()

	exists, err := r.client.Exists(ctx, userKey(subscriber)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check subscriber: %w", err)
	}
	if exists == 0 {
		return nil, domain.ErrUserNotFound
	}

	streamers, err := r.client.SMembers(ctx, userSubscriptionsKey(subscriber)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read subscriptions: %w", err)
	}
	if len(streamers) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(streamers))
	for _, s := range streamers {
		keys = append(keys, userStreamsKey(domain.UserID(s)))
	}
	ids, err := r.client.SUnion(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read subscribed streams: %w", err)
	}

	streams, err := r.loadMany(ctx, r.client, ids)
	if err != nil {
		return nil, err
	}
	order := domain.StreamFilters{}.Normalize()
	sort.Slice(streams, func(i, j int) bool { return order.Less(streams[i], streams[j]) })

	return r.withStreamers(ctx, streams), nil
}

func (r *RedisStreamRepository) Update(ctx context.Context, id domain.StreamID, updates domain.StreamUpdates) (*domain.Stream, error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, "redis", "update", "streams")
	defer span.End()

	var updated *domain.Stream

	txf := func(tx *redis.Tx) error {
		stream, err := r.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := updates.ApplyTo(stream, r.now()); err != nil {
			return err
		}
		if err := stream.Validate(); err != nil {
			return err
		}
		if stream.Live {
			if err := r.checkAppInstance(ctx, tx, stream); err != nil {
				return err
			}
		}
		data, err := marshalStream(stream)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, streamKey(id), data, 0)
			if stream.Live {
				pipe.SAdd(ctx, liveStreamsKey(), string(id))
			} else {
				pipe.SRem(ctx, liveStreamsKey(), string(id))
			}
			return nil
		})
		updated = stream
		return err
	}

	if err := r.watch(ctx, txf, streamKey(id), liveStreamsKey()); err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	return r.withStreamers(ctx, []*domain.Stream{updated})[0], nil
}

func (r *RedisStreamRepository) UpdateTotalViews(ctx context.Context, id domain.StreamID) error {
	ctx, span := tracing.TraceDatabaseOperation(ctx, "redis", "update_total_views", "streams")
	defer span.End()

	txf := func(tx *redis.Tx) error {
		stream, err := r.load(ctx, tx, id)
		if err != nil {
			return err
		}
		count, err := tx.SCard(ctx, streamViewersKey(id)).Result()
		if err != nil {
			return fmt.Errorf("failed to count viewers: %w", err)
		}
		stream.TotalViewers = int(count)

		data, err := marshalStream(stream)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, streamKey(id), data, 0)
			return nil
		})
		return err
	}
	return r.watch(ctx, txf, streamKey(id), streamViewersKey(id))
}

func (r *RedisStreamRepository) RecordView(ctx context.Context, id domain.StreamID, viewer domain.UserID) error {
	ctx, span := tracing.TraceDatabaseOperation(ctx, "redis", "record_view", "stream_viewers")
	defer span.End()

	if strings.TrimSpace(string(viewer)) == "" {
		return &domain.InvalidFieldError{Field: "userId", Message: "userId is required"}
	}

	exists, err := r.client.Exists(ctx, streamKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to check stream: %w", err)
	}
	if exists == 0 {
		return domain.ErrStreamNotFound
	}
	if err := r.client.SAdd(ctx, streamViewersKey(id), string(viewer)).Err(); err != nil {
		return fmt.Errorf("failed to record view: %w", err)
	}
	return nil
}

func (r *RedisStreamRepository) Delete(ctx context.Context, id domain.StreamID) (bool, error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, "redis", "delete", "streams")
	defer span.End()

	stream, err := r.load(ctx, r.client, id)
	if errors.Is(err, domain.ErrStreamNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, streamKey(id))
	pipe.Del(ctx, streamViewersKey(id))
	pipe.SRem(ctx, allStreamsKey(), string(id))
	pipe.SRem(ctx, liveStreamsKey(), string(id))
	pipe.SRem(ctx, userStreamsKey(stream.Owner), string(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to delete stream from Redis: %w", err)
	}
	return del.Val() > 0, nil
}

func (r *RedisStreamRepository) watch(ctx context.Context, txf func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("stream update contended: %w", redis.TxFailedErr)
}

func (r *RedisStreamRepository) load(ctx context.Context, c redis.Cmdable, id domain.StreamID) (*domain.Stream, error) {
	data, err := c.Get(ctx, streamKey(id)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrStreamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stream from Redis: %w", err)
	}
	return unmarshalStream(data)
}

// checkAppInstance rejects st when another live stream already uses its
// appInstance.
func (r *RedisStreamRepository) checkAppInstance(ctx context.Context, c redis.Cmdable, st *domain.Stream) error {
	ids, err := c.SMembers(ctx, liveStreamsKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to read live stream index: %w", err)
	}
	live, err := r.loadMany(ctx, c, ids)
	if err != nil {
		return err
	}
	for _, other := range live {
		if st.SharesRoomWith(other) {
			return domain.NewAppInstanceInUseError(st.AppInstance)
		}
	}
	return nil
}

func (r *RedisStreamRepository) loadMany(ctx context.Context, c redis.Cmdable, ids []string) ([]*domain.Stream, error) {
	if len(ids) == 0 {
		return []*domain.Stream{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = streamKey(domain.StreamID(id))
	}

	values, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get streams from Redis: %w", err)
	}

	streams := make([]*domain.Stream, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// index entry outlived its record
			continue
		}
		st, err := unmarshalStream([]byte(raw))
		if err != nil {
			return nil, err
		}
		streams = append(streams, st)
	}
	return streams, nil
}

// withStreamers attaches owners, loading each distinct owner once. Streams
// whose owner cannot be read are returned without one.
func (r *RedisStreamRepository) withStreamers(ctx context.Context, streams []*domain.Stream) []*domain.Stream {
	owners := make(map[domain.UserID]*domain.User)
	for _, st := range streams {
		u, seen := owners[st.Owner]
		if !seen {
			u, _ = getUser(ctx, r.client, st.Owner)
			owners[st.Owner] = u
		}
		st.Streamer = u
	}
	return streams
}

func marshalStream(s *domain.Stream) ([]byte, error) {
	cp := *s
	cp.Streamer = nil
	data, err := json.Marshal(&cp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream: %w", err)
	}
	return data, nil
}

func unmarshalStream(data []byte) (*domain.Stream, error) {
	var s domain.Stream
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stream: %w", err)
	}
	return &s, nil
}
