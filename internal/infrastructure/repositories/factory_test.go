package repositories

import (
	"context"
	"testing"

	"livestream/internal/core/domain"
	"livestream/internal/infrastructure/repositories/memory"
	"livestream/pkg/config"
	"livestream/pkg/distributed"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFactory_Memory(t *testing.T) {
	cfg := config.DefaultConfig()
	f, err := NewRepositoryFactory(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, config.StorageMemory, f.Driver())
	assert.IsType(t, &memory.MemoryStreamRepository{}, f.CreateStreamRepository())
	assert.IsType(t, &distributed.KeyedMutex{}, f.CreateLocker())
	assert.NoError(t, f.HealthCheck(context.Background()))

	// both repositories share one store
	u, err := f.CreateUserRepository().Create(context.Background(), domain.UserAttributes{Username: "alexchan"})
	require.NoError(t, err)
	_, err = f.CreateStreamRepository().Create(context.Background(), u.ID, domain.StreamAttributes{Title: "t", AppInstance: "x1"})
	assert.NoError(t, err)
}

func TestFactory_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.DefaultConfig()
	cfg.Storage.Driver = config.StorageRedis
	cfg.Redis.Address = mr.Addr()

	f, err := NewRepositoryFactory(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, config.StorageRedis, f.Driver())
	assert.IsType(t, &distributed.LockManager{}, f.CreateLocker())
	assert.NoError(t, f.HealthCheck(context.Background()))
}

func TestFactory_SQLite(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Driver = config.StorageSQLite
	cfg.Storage.DSN = "file:factory_test?mode=memory&cache=shared"

	f, err := NewRepositoryFactory(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer f.Close()

	assert.NoError(t, f.HealthCheck(context.Background()))
	u, err := f.CreateUserRepository().Create(context.Background(), domain.UserAttributes{Username: "alexchan"})
	require.NoError(t, err)
	_, err = f.CreateStreamRepository().Create(context.Background(), u.ID, domain.StreamAttributes{Title: "t", AppInstance: "x1"})
	assert.NoError(t, err)
}

func TestFactory_RedisUnavailable(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Driver = config.StorageRedis
	cfg.Redis.Address = "127.0.0.1:1"

	_, err := NewRepositoryFactory(cfg, zap.NewNop().Sugar())
	assert.Error(t, err)
}
