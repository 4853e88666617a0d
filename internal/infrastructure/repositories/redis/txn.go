package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"castline/internal/core/domain"
	"castline/pkg/tracing"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

const (
	maxTxRetries      = 10
	txInitialInterval = 5 * time.Millisecond
	txMaxInterval     = 100 * time.Millisecond
	txMaxElapsed      = 2 * time.Second
)

// watchRetry runs fn under WATCH on keys and retries with exponential backoff
// while another writer wins the race. Any other error ends the loop.
func watchRetry(ctx context.Context, client *redis.Client, fn func(tx *redis.Tx) error, keys ...string) error {
	keyspace := ""
	if len(keys) > 0 {
		keyspace = keys[0]
	}
	ctx, span := tracing.TraceStoreOperation(ctx, "watch", keyspace)
	defer span.End()

	attempts := 0
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(txInitialInterval),
		backoff.WithMaxInterval(txMaxInterval),
		backoff.WithMaxElapsedTime(txMaxElapsed),
	), maxTxRetries)

	err := backoff.Retry(func() error {
		attempts++
		err := client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(b, ctx))

	span.SetAttributes(attribute.Int("store.attempts", attempts))
	if err != nil {
		tracing.RecordError(ctx, err)
	}
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	}
	return err
}
