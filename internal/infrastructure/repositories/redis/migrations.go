package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"castline/internal/core/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const currentSchemaVersion = 2

type Migration struct {
	Version int
	Up      func(ctx context.Context, client *redis.Client, prefix string) error
}

func schemaVersionKey(prefix string) string {
	return prefix + "schema:version"
}

// Migrate runs every migration newer than the stored schema version.
func Migrate(ctx context.Context, client *redis.Client, prefix string, logger *zap.SugaredLogger) error {
	currentVersion, err := getSchemaVersion(ctx, client, prefix)
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

		if err := migration.Up(ctx, client, prefix); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}
		if err := client.Set(ctx, schemaVersionKey(prefix), migration.Version, 0).Err(); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}

	if logger != nil {
		logger.Infow("all migrations completed", "final_version", currentSchemaVersion)
	}
	return nil
}

func getSchemaVersion(ctx context.Context, client *redis.Client, prefix string) (int, error) {
	val, err := client.Get(ctx, schemaVersionKey(prefix)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func getMigrations() []Migration {
	return []Migration{
		{
			// Seed chat settings so administrators edit a concrete document.
			Version: 1,
			Up: func(ctx context.Context, client *redis.Client, prefix string) error {
				data, err := json.Marshal(domain.DefaultChatSettings())
				if err != nil {
					return err
				}
				return client.SetNX(ctx, settingsKey(prefix), data, 0).Err()
			},
		},
		{
			// Seed an offline broadcast record so chat has a session to attach to
			// before the first publish.
			Version: 2,
			Up: func(ctx context.Context, client *redis.Client, prefix string) error {
				data, err := json.Marshal(&domain.Stream{
					SessionID: domain.SessionID(uuid.NewString()),
					Status:    domain.StreamOffline,
				})
				if err != nil {
					return err
				}
				return client.SetNX(ctx, prefix+"broadcast:current", data, 0).Err()
			},
		},
	}
}
