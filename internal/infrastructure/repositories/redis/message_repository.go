package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"castline/internal/core/domain"
	"castline/internal/core/ports"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisMessageRepository keeps each message as a JSON document and a sorted
// set per session scored by timestamp. Members are ULIDs, so equal scores
// fall back to lexicographic order, which is creation order.
type RedisMessageRepository struct {
	client *redis.Client
	prefix string
	logger *zap.SugaredLogger
}

func NewRedisMessageRepository(client *redis.Client, prefix string, logger *zap.SugaredLogger) ports.MessageRepository {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RedisMessageRepository{client: client, prefix: prefix, logger: logger}
}

func (r *RedisMessageRepository) messageKey(id domain.MessageID) string {
	return r.prefix + "message:" + string(id)
}

func (r *RedisMessageRepository) timelineKey(session domain.SessionID) string {
	return r.prefix + "messages:" + string(session)
}

func (r *RedisMessageRepository) Append(ctx context.Context, m *domain.Message) (domain.MessageID, error) {
	if m.SessionID == "" {
		return "", fmt.Errorf("%w: message has no session", domain.ErrValidation)
	}

	stored := m.Clone()
	if stored.ID == "" {
		stored.ID = domain.MessageID(ulid.Make().String())
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.messageKey(stored.ID), data, 0)
		pipe.ZAdd(ctx, r.timelineKey(stored.SessionID), redis.Z{
			Score:  float64(stored.Timestamp),
			Member: string(stored.ID),
		})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to append message to Redis: %w", err)
	}
	return stored.ID, nil
}

func (r *RedisMessageRepository) Get(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	return r.get(ctx, r.client, id)
}

func (r *RedisMessageRepository) get(ctx context.Context, c redis.Cmdable, id domain.MessageID) (*domain.Message, error) {
	data, err := c.Get(ctx, r.messageKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message from Redis: %w", err)
	}

	var m domain.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return &m, nil
}

func (r *RedisMessageRepository) ListBySession(ctx context.Context, session domain.SessionID) ([]*domain.Message, error) {
	ids, err := r.client.ZRange(ctx, r.timelineKey(session), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read timeline from Redis: %w", err)
	}
	if len(ids) == 0 {
		return []*domain.Message{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.messageKey(domain.MessageID(id))
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load messages from Redis: %w", err)
	}

	// A member whose document is gone or unreadable is skipped so the rest of
	// the timeline still loads.
	messages := make([]*domain.Message, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			r.logger.Errorw("timeline entry has no message document",
				"session_id", session, "message_id", ids[i])
			continue
		}
		var m domain.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			r.logger.Errorw("failed to decode timeline message",
				"session_id", session, "message_id", ids[i], "error", err)
			continue
		}
		messages = append(messages, &m)
	}
	return messages, nil
}

func (r *RedisMessageRepository) PatchContent(ctx context.Context, id domain.MessageID, replacement string) (*domain.Message, error) {
	return r.update(ctx, id, func(m *domain.Message) error {
		m.Redact(replacement)
		return nil
	})
}

func (r *RedisMessageRepository) SetReactions(ctx context.Context, id domain.MessageID, reactions []domain.Reaction) error {
	_, err := r.update(ctx, id, func(m *domain.Message) error {
		m.Reactions = domain.NormalizeReactions(reactions)
		return nil
	})
	return err
}

func (r *RedisMessageRepository) ModifyReactions(ctx context.Context, id domain.MessageID, fn ports.ReactionMutation) ([]domain.Reaction, error) {
	m, err := r.update(ctx, id, func(m *domain.Message) error {
		next, err := fn(domain.CloneReactions(m.Reactions))
		if err != nil {
			return err
		}
		m.Reactions = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.Reactions, nil
}

func (r *RedisMessageRepository) update(ctx context.Context, id domain.MessageID, fn func(m *domain.Message) error) (*domain.Message, error) {
	key := r.messageKey(id)
	var result *domain.Message

	err := watchRetry(ctx, r.client, func(tx *redis.Tx) error {
		m, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(m); err != nil {
			return err
		}

		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err != nil {
			return err
		}
		result = m
		return nil
	}, key)
	if err != nil {
		return nil, err
	}
	return result, nil
}
