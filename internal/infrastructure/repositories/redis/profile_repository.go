package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"castline/internal/core/domain"
	"castline/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisProfileRepository stores profiles as JSON documents with a secondary
// index from stream key to owner. Updates are optimistic: WATCH the document,
// apply the mutation, bump the version and commit in MULTI.
type RedisProfileRepository struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisProfileRepository(client *redis.Client, prefix string) ports.ProfileRepository {
	return &RedisProfileRepository{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (r *RedisProfileRepository) profileKey(id domain.UserID) string {
	return r.prefix + "profile:" + string(id)
}

func (r *RedisProfileRepository) streamKeyIndex(key domain.StreamKey) string {
	return r.prefix + "profile:streamkey:" + string(key)
}

func (r *RedisProfileRepository) Get(ctx context.Context, id domain.UserID) (*domain.Profile, error) {
	return r.get(ctx, r.client, id)
}

func (r *RedisProfileRepository) get(ctx context.Context, c redis.Cmdable, id domain.UserID) (*domain.Profile, error) {
	data, err := c.Get(ctx, r.profileKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile from Redis: %w", err)
	}

	var p domain.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &p, nil
}

// GetByStreamKey resolves through the index and then checks the owner still
// holds the key, so a stale index entry never validates.
func (r *RedisProfileRepository) GetByStreamKey(ctx context.Context, key domain.StreamKey) (*domain.Profile, error) {
	if key == "" {
		return nil, domain.ErrProfileNotFound
	}

	id, err := r.client.Get(ctx, r.streamKeyIndex(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve stream key: %w", err)
	}

	p, err := r.Get(ctx, domain.UserID(id))
	if err != nil {
		return nil, err
	}
	if p.StreamKey != key {
		return nil, domain.ErrProfileNotFound
	}
	return p, nil
}

func (r *RedisProfileRepository) Create(ctx context.Context, p *domain.Profile) (*domain.Profile, error) {
	key := r.profileKey(p.ID)
	var result *domain.Profile

	err := watchRetry(ctx, r.client, func(tx *redis.Tx) error {
		existing, err := r.get(ctx, tx, p.ID)
		if err == nil {
			result = existing
			return nil
		}
		if !errors.Is(err, domain.ErrProfileNotFound) {
			return err
		}

		created := p.Clone()
		created.Version = 1
		data, err := json.Marshal(created)
		if err != nil {
			return fmt.Errorf("failed to marshal profile: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if created.StreamKey != "" {
				pipe.Set(ctx, r.streamKeyIndex(created.StreamKey), string(created.ID), 0)
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = created
		return nil
	}, key)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *RedisProfileRepository) Update(ctx context.Context, id domain.UserID, fn ports.ProfileMutation) (*domain.Profile, error) {
	key := r.profileKey(id)
	var result *domain.Profile

	err := watchRetry(ctx, r.client, func(tx *redis.Tx) error {
		current, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}

		next := current.Clone()
		if err := fn(next); err != nil {
			return err
		}
		next.ID = current.ID
		next.Version = current.Version + 1
		next.UpdatedAt = r.now()

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal profile: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if next.StreamKey != current.StreamKey {
				if current.StreamKey != "" {
					pipe.Del(ctx, r.streamKeyIndex(current.StreamKey))
				}
				if next.StreamKey != "" {
					pipe.Set(ctx, r.streamKeyIndex(next.StreamKey), string(next.ID), 0)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = next
		return nil
	}, key)
	if err != nil {
		return nil, err
	}
	return result, nil
}
