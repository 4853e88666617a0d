package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"castline/internal/core/domain"
	"castline/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisChatSettingsRepository struct {
	client redis.Cmdable
	prefix string
}

func NewRedisChatSettingsRepository(client redis.Cmdable, prefix string) ports.ChatSettingsRepository {
	return &RedisChatSettingsRepository{client: client, prefix: prefix}
}

func settingsKey(prefix string) string {
	return prefix + "chat:settings"
}

func (r *RedisChatSettingsRepository) Get(ctx context.Context) (*domain.ChatSettings, error) {
	data, err := r.client.Get(ctx, settingsKey(r.prefix)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat settings from Redis: %w", err)
	}

	var s domain.ChatSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chat settings: %w", err)
	}
	return &s, nil
}

func (r *RedisChatSettingsRepository) Save(ctx context.Context, s *domain.ChatSettings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal chat settings: %w", err)
	}
	if err := r.client.Set(ctx, settingsKey(r.prefix), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set chat settings in Redis: %w", err)
	}
	return nil
}
