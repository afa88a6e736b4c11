package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"livestream/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	schemaVersionKey     = keyPrefix + "schema:version"
	currentSchemaVersion = 1
)

// Migration represents a schema migration
type Migration struct {
	Version int
	Up      func(ctx context.Context, client *redis.Client) error
}

// Migrate runs all pending migrations. A nil error means storage is ready.
func Migrate(ctx context.Context, client *redis.Client, logger *zap.SugaredLogger) error {
	currentVersion, err := getSchemaVersion(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if currentVersion >= currentSchemaVersion {
		if logger != nil {
			logger.Infow("schema is up to date",
				"current_version", currentVersion,
				"target_version", currentSchemaVersion,
			)
		}
		return nil
	}

	for _, migration := range getMigrations() {
		if migration.Version <= currentVersion {
			continue
		}
		if logger != nil {
			logger.Infow("running migration", "version", migration.Version)
		}
		if err := migration.Up(ctx, client); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}
		if err := setSchemaVersion(ctx, client, migration.Version); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}

	if logger != nil {
		logger.Infow("all migrations completed", "final_version", currentSchemaVersion)
	}
	return nil
}

func getSchemaVersion(ctx context.Context, client *redis.Client) (int, error) {
	val, err := client.Get(ctx, schemaVersionKey).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func setSchemaVersion(ctx context.Context, client *redis.Client, version int) error {
	return client.Set(ctx, schemaVersionKey, version, 0).Err()
}

func getMigrations() []Migration {
	return []Migration{
		{
			// Rebuild the live index from the stream records so restored
			// chat rooms match what is actually live.
			Version: 1,
			Up: func(ctx context.Context, client *redis.Client) error {
				ids, err := client.SMembers(ctx, allStreamsKey()).Result()
				if err != nil {
					return err
				}

				pipe := client.TxPipeline()
				pipe.Del(ctx, liveStreamsKey())
				for _, id := range ids {
					data, err := client.Get(ctx, streamKey(domain.StreamID(id))).Bytes()
					if err == redis.Nil {
						pipe.SRem(ctx, allStreamsKey(), id)
						continue
					}
					if err != nil {
						return err
					}
					var st domain.Stream
					if err := json.Unmarshal(data, &st); err != nil {
						return fmt.Errorf("stream %s: %w", id, err)
					}
					if st.Live {
						pipe.SAdd(ctx, liveStreamsKey(), id)
					}
				}
				_, err = pipe.Exec(ctx)
				return err
			},
		},
	}
}
