package repositories

import (
	"context"
	"fmt"

	"livestream/internal/core/ports"
	"livestream/internal/infrastructure/repositories/memory"
	redisrepo "livestream/internal/infrastructure/repositories/redis"
	sqlrepo "livestream/internal/infrastructure/repositories/sql"
	"livestream/pkg/config"
	"livestream/pkg/distributed"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const lockPrefix = "livestream:lock:"

// RepositoryFactory opens the configured storage backend and hands out its
// repositories. A successfully constructed factory means storage is ready.
type RepositoryFactory struct {
	driver      string
	redisClient *redis.Client
	db          *gorm.DB
	store       *memory.Store
	cfg         *config.Config
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory connects to the backend named by storage.driver and
// runs its migrations.
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		driver: cfg.Storage.Driver,
		cfg:    cfg,
		logger: logger,
	}

	switch cfg.Storage.Driver {
	case config.StorageRedis:
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			return nil, err
		}
		factory.redisClient = client
		logger.Info("using Redis repositories")

	case config.StoragePostgres, config.StorageSQLite:
		db, err := sqlrepo.New(sqlrepo.Config{
			Driver:       cfg.Storage.Driver,
			DSN:          cfg.Storage.DSN,
			MaxIdleConns: 5,
			MaxOpenConns: 20,
		})
		if err != nil {
			return nil, err
		}
		if err := sqlrepo.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		factory.db = db
		logger.Infow("using SQL repositories", "driver", cfg.Storage.Driver)

	default:
		factory.driver = config.StorageMemory
		factory.store = memory.NewStore()
		logger.Info("using memory repositories")
	}

	return factory, nil
}

func (f *RepositoryFactory) Driver() string {
	return f.driver
}

// CreateStreamRepository creates the stream repository for the backend.
func (f *RepositoryFactory) CreateStreamRepository() ports.StreamRepository {
	switch {
	case f.redisClient != nil:
		return redisrepo.NewRedisStreamRepository(f.redisClient)
	case f.db != nil:
		return sqlrepo.NewGormStreamRepository(f.db)
	default:
		return f.store.Streams()
	}
}

// CreateUserRepository creates the user repository for the backend.
func (f *RepositoryFactory) CreateUserRepository() ports.UserRepository {
	switch {
	case f.redisClient != nil:
		return redisrepo.NewRedisUserRepository(f.redisClient)
	case f.db != nil:
		return sqlrepo.NewGormUserRepository(f.db)
	default:
		return f.store.Users()
	}
}

// CreateLocker returns a Redis lock manager when Redis backs storage, so
// several instances serialise on the same stream; otherwise an in-process
// keyed mutex.
func (f *RepositoryFactory) CreateLocker() ports.Locker {
	if f.redisClient != nil {
		return distributed.NewLockManager(f.redisClient, lockPrefix, f.cfg.Locking.TTL, f.cfg.Locking.WaitTimeout)
	}
	return distributed.NewKeyedMutex()
}

// Close releases backend connections.
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	if f.db != nil {
		sqlDB, err := f.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// HealthCheck pings the backend.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	if f.db != nil {
		sqlDB, err := f.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
	return nil
}
