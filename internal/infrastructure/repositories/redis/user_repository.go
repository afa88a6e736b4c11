package redis

import (
	"context"
	"encoding/json"
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

type RedisUserRepository struct {
	client *redis.Client
}

func NewRedisUserRepository(client *redis.Client) ports.UserRepository {
	return &RedisUserRepository{client: client}
}

func (r *RedisUserRepository) Create(ctx context.Context, attrs domain.UserAttributes) (*domain.User, error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, "redis", "create", "users")
	defer span.End()

	attrs.Username = strings.TrimSpace(attrs.Username)
	if err := attrs.Validate(); err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:        domain.UserID(uuid.New().String()),
		Username:  attrs.Username,
		Email:     attrs.Email,
		CreatedAt: time.Now(),
	}

	claimed, err := r.client.SetNX(ctx, usernameKey(user.Username), string(user.ID), 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to reserve username: %w", err)
	}
	if !claimed {
		return nil, domain.ErrUserExists
	}

	data, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := r.client.Set(ctx, userKey(user.ID), data, 0).Err(); err != nil {
		r.client.Del(ctx, usernameKey(user.Username))
		return nil, fmt.Errorf("failed to store user in Redis: %w", err)
	}
	return user, nil
}

func (r *RedisUserRepository) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, "redis", "get", "users")
	defer span.End()

	return getUser(ctx, r.client, id)
}

func (r *RedisUserRepository) AddSubscriber(ctx context.Context, streamer, subscriber domain.UserID) error {
	ctx, span := tracing.TraceDatabaseOperation(ctx, "redis", "add_subscriber", "users")
	defer span.End()

	n, err := r.client.Exists(ctx, userKey(streamer), userKey(subscriber)).Result()
	if err != nil {
		return fmt.Errorf("failed to check users: %w", err)
	}
	if n < 2 {
		return domain.ErrUserNotFound
	}

	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, userSubscribersKey(streamer), string(subscriber))
	pipe.SAdd(ctx, userSubscriptionsKey(subscriber), string(streamer))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add subscriber: %w", err)
	}
	return nil
}

func getUser(ctx context.Context, client *redis.Client, id domain.UserID) (*domain.User, error) {
	data, err := client.Get(ctx, userKey(id)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user from Redis: %w", err)
	}

	var user domain.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}

	subscribers, err := client.SMembers(ctx, userSubscribersKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get subscribers: %w", err)
	}
	sort.Strings(subscribers)
	user.Subscribers = make([]domain.UserID, len(subscribers))
	for i, s := range subscribers {
		user.Subscribers[i] = domain.UserID(s)
	}
	if len(user.Subscribers) == 0 {
		user.Subscribers = nil
	}
	return &user, nil
}
