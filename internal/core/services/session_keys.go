package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"castline/internal/core/domain"
	"castline/internal/core/ports"
)

// Session store layout. The lifecycle service is the only writer of the live
// pointer and the status keys.
const liveKeyPointer = "live-key"

func statusKey(key domain.StreamKey) string {
	return fmt.Sprintf("stream:%s:status", key)
}

func metricsKey(key domain.StreamKey) string {
	return fmt.Sprintf("stream:%s:metrics", key)
}

func joinMarkerKey(key domain.StreamKey, user domain.UserID) string {
	return fmt.Sprintf("stream:%s/%s", key, user)
}

// liveKey returns the credential of the broadcast that is currently live.
func liveKey(ctx context.Context, store ports.SessionStore) (domain.StreamKey, error) {
	raw, err := store.Get(ctx, liveKeyPointer)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return "", domain.ErrNotLive
	}
	if err != nil {
		return "", domain.Unavailable("read live key", err)
	}
	if len(raw) == 0 {
		return "", domain.ErrNotLive
	}
	return domain.StreamKey(raw), nil
}

func readMetrics(ctx context.Context, store ports.SessionStore, key domain.StreamKey) (domain.StreamMetrics, error) {
	var m domain.StreamMetrics
	raw, err := store.Get(ctx, metricsKey(key))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return domain.StreamMetrics{}, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}
	return m, nil
}

func writeMetrics(ctx context.Context, store ports.SessionStore, key domain.StreamKey, m domain.StreamMetrics) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	return store.Set(ctx, metricsKey(key), raw, 0)
}
