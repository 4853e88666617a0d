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

// RedisStreamRepository holds the single broadcast record.
type RedisStreamRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisStreamRepository(client *redis.Client, prefix string) ports.StreamRepository {
	return &RedisStreamRepository{client: client, prefix: prefix}
}

func (r *RedisStreamRepository) streamKey() string {
	return r.prefix + "broadcast:current"
}

func (r *RedisStreamRepository) Current(ctx context.Context) (*domain.Stream, error) {
	return r.get(ctx, r.client)
}

func (r *RedisStreamRepository) get(ctx context.Context, c redis.Cmdable) (*domain.Stream, error) {
	data, err := c.Get(ctx, r.streamKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrStreamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stream from Redis: %w", err)
	}

	var stream domain.Stream
	if err := json.Unmarshal(data, &stream); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stream: %w", err)
	}
	return &stream, nil
}

func (r *RedisStreamRepository) Save(ctx context.Context, stream *domain.Stream) error {
	data, err := json.Marshal(stream)
	if err != nil {
		return fmt.Errorf("failed to marshal stream: %w", err)
	}
	if err := r.client.Set(ctx, r.streamKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set stream in Redis: %w", err)
	}
	return nil
}

// Update rewrites the record only if nobody else wrote it since it was read,
// so metadata edits and liveness transitions never revert each other.
func (r *RedisStreamRepository) Update(ctx context.Context, fn ports.StreamMutation) (*domain.Stream, error) {
	key := r.streamKey()
	var result *domain.Stream

	err := watchRetry(ctx, r.client, func(tx *redis.Tx) error {
		current, err := r.get(ctx, tx)
		if errors.Is(err, domain.ErrStreamNotFound) {
			current = &domain.Stream{Status: domain.StreamOffline}
		} else if err != nil {
			return err
		}

		if err := fn(current); err != nil {
			return err
		}

		data, err := json.Marshal(current)
		if err != nil {
			return fmt.Errorf("failed to marshal stream: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err != nil {
			return err
		}
		result = current
		return nil
	}, key)
	if err != nil {
		return nil, err
	}
	return result, nil
}
