package redis

import (
	"context"
	"encoding/json"
	"testing"

	"livestream/internal/core/domain"
	"livestream/internal/core/ports"
	"livestream/internal/infrastructure/repositories/repotest"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisRepositories(t *testing.T) {
	repotest.Run(t, func(t *testing.T) (ports.StreamRepository, ports.UserRepository) {
		_, client := newTestClient(t)
		return NewRedisStreamRepository(client), NewRedisUserRepository(client)
	})
}

func TestRedisStreamRepository_LiveIndex(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()
	users := NewRedisUserRepository(client)
	streams := NewRedisStreamRepository(client)

	u, err := users.Create(ctx, domain.UserAttributes{Username: "alexchan"})
	require.NoError(t, err)
	st, err := streams.Create(ctx, u.ID, domain.StreamAttributes{Title: "t", AppInstance: "x1"})
	require.NoError(t, err)

	isLive, err := mr.SIsMember(liveStreamsKey(), string(st.ID))
	require.NoError(t, err)
	assert.True(t, isLive)

	_, err = streams.Update(ctx, st.ID, domain.StreamUpdates{"live": false})
	require.NoError(t, err)

	isLive, err = mr.SIsMember(liveStreamsKey(), string(st.ID))
	require.NoError(t, err)
	assert.False(t, isLive)

	raw, err := mr.Get(streamKey(st.ID))
	require.NoError(t, err)
	assert.NotContains(t, raw, "streamer", "owner is never embedded in the record")
}

func TestMigrate_RebuildsLiveIndex(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	live, _ := json.Marshal(domain.Stream{ID: "s1", Title: "a", AppInstance: "x1", Live: true})
	ended, _ := json.Marshal(domain.Stream{ID: "s2", Title: "b", AppInstance: "x2", Live: false})
	require.NoError(t, mr.Set(streamKey("s1"), string(live)))
	require.NoError(t, mr.Set(streamKey("s2"), string(ended)))
	_, err := mr.SAdd(allStreamsKey(), "s1", "s2", "gone")
	require.NoError(t, err)
	_, err = mr.SAdd(liveStreamsKey(), "s2")
	require.NoError(t, err)

	require.NoError(t, Migrate(ctx, client, zap.NewNop().Sugar()))

	members, err := mr.Members(liveStreamsKey())
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, members)

	all, err := mr.Members(allStreamsKey())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, all)

	version, err := mr.Get(schemaVersionKey)
	require.NoError(t, err)
	assert.Equal(t, "1", version)

	// second run is a no-op
	require.NoError(t, Migrate(ctx, client, nil))
}
