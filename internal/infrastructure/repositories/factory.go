package repositories

import (
	"context"

	"castline/internal/core/ports"
	"castline/internal/infrastructure/repositories/memory"
	redisrepo "castline/internal/infrastructure/repositories/redis"
	"castline/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory builds the store adapters. When Redis is disabled or
// unreachable it falls back to process-local memory stores, which only make
// sense for a single-process deployment.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	prefix      string
	logger      *zap.SugaredLogger

	memStore    *memory.MemorySessionStore
	memProfiles *memory.MemoryProfileRepository
	memMessages *memory.MemoryMessageRepository
	memStreams  *memory.MemoryStreamRepository
	memSettings *memory.MemoryChatSettingsRepository
	memLocker   *memory.MemoryLocker
}

func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		prefix:   cfg.Redis.KeyPrefix,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(redisrepo.Options{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
		factory.memStore = memory.NewMemorySessionStore()
		factory.memProfiles = memory.NewMemoryProfileRepository()
		factory.memMessages = memory.NewMemoryMessageRepository()
		factory.memStreams = memory.NewMemoryStreamRepository()
		factory.memSettings = memory.NewMemoryChatSettingsRepository()
		factory.memLocker = memory.NewMemoryLocker()
	}

	return factory, nil
}

func (f *RepositoryFactory) redisEnabled() bool {
	return f.useRedis && f.redisClient != nil
}

// Client returns the Redis client, or nil when running on memory stores.
func (f *RepositoryFactory) Client() *redis.Client {
	return f.redisClient
}

func (f *RepositoryFactory) CreateSessionStore() ports.SessionStore {
	if f.redisEnabled() {
		return redisrepo.NewRedisSessionStore(f.redisClient, f.prefix)
	}
	return f.memStore
}

func (f *RepositoryFactory) CreateProfileRepository() ports.ProfileRepository {
	if f.redisEnabled() {
		return redisrepo.NewRedisProfileRepository(f.redisClient, f.prefix)
	}
	return f.memProfiles
}

func (f *RepositoryFactory) CreateMessageRepository() ports.MessageRepository {
	if f.redisEnabled() {
		return redisrepo.NewRedisMessageRepository(f.redisClient, f.prefix, f.logger)
	}
	return f.memMessages
}

func (f *RepositoryFactory) CreateStreamRepository() ports.StreamRepository {
	if f.redisEnabled() {
		return redisrepo.NewRedisStreamRepository(f.redisClient, f.prefix)
	}
	return f.memStreams
}

func (f *RepositoryFactory) CreateChatSettingsRepository() ports.ChatSettingsRepository {
	if f.redisEnabled() {
		return redisrepo.NewRedisChatSettingsRepository(f.redisClient, f.prefix)
	}
	return f.memSettings
}

func (f *RepositoryFactory) CreateLocker() ports.Locker {
	if f.redisEnabled() {
		return redisrepo.NewRedisLocker(f.redisClient, f.prefix)
	}
	return f.memLocker
}

func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.redisEnabled() {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
