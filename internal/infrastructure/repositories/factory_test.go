package repositories

import (
	"context"
	"testing"

	"castline/internal/core/domain"
	"castline/internal/infrastructure/repositories/memory"
	redisrepo "castline/internal/infrastructure/repositories/redis"
	"castline/pkg/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRepositoryFactory_Memory(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Redis.Enabled = false

	factory, err := NewRepositoryFactory(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer factory.Close()

	assert.Nil(t, factory.Client())
	assert.IsType(t, &memory.MemoryProfileRepository{}, factory.CreateProfileRepository())
	assert.IsType(t, &memory.MemoryLocker{}, factory.CreateLocker())
	assert.NoError(t, factory.HealthCheck(context.Background()))

	// memory stores are shared between callers of the same factory
	ctx := context.Background()
	require.NoError(t, factory.CreateSessionStore().Set(ctx, "k", []byte("v"), 0))
	v, err := factory.CreateSessionStore().Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))
}

func TestRepositoryFactory_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.DefaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Address = mr.Addr()
	cfg.Redis.KeyPrefix = "castline:"

	factory, err := NewRepositoryFactory(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer factory.Close()

	require.NotNil(t, factory.Client())
	assert.IsType(t, &redisrepo.RedisProfileRepository{}, factory.CreateProfileRepository())
	assert.NoError(t, factory.HealthCheck(context.Background()))

	// migrations ran on connect
	stream, err := factory.CreateStreamRepository().Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StreamOffline, stream.Status)

	_, err = factory.CreateChatSettingsRepository().Get(context.Background())
	assert.NoError(t, err)
}
