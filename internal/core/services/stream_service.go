package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"castline/internal/core/domain"
	"castline/internal/core/ports"

	"go.uber.org/zap"
)

const (
	maxTitleLength       = 140
	maxDescriptionLength = 2000
)

type streamService struct {
	profiles ports.ProfileRepository
	streams  ports.StreamRepository
	store    ports.SessionStore
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewStreamService(
	profiles ports.ProfileRepository,
	streams ports.StreamRepository,
	store ports.SessionStore,
	logger *zap.SugaredLogger,
) ports.StreamService {
	return &streamService{
		profiles: profiles,
		streams:  streams,
		store:    store,
		logger:   loggerOrNop(logger),
		now:      time.Now,
	}
}

func (s *streamService) Current(ctx context.Context) (*domain.Stream, error) {
	stream, err := s.streams.Current(ctx)
	if err != nil {
		return nil, storeErr("load stream", err)
	}
	return stream, nil
}

func (s *streamService) Patch(ctx context.Context, actor domain.Identity, patch domain.StreamPatch) (*domain.Stream, error) {
	profile, err := loadActor(ctx, s.profiles, actor)
	if err != nil {
		return nil, err
	}
	if err := authorize(profile, domain.PermPublishStream); err != nil {
		return nil, err
	}
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}

	// Only metadata is touched here. Liveness fields come from the fresh
	// record inside the transaction.
	stream, err := s.streams.Update(ctx, func(stream *domain.Stream) error {
		if patch.Title != nil {
			stream.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			stream.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.ContentRating != nil {
			stream.ContentRating = *patch.ContentRating
		}
		stream.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, storeErr("update stream", err)
	}

	s.logger.Infow("stream metadata updated", "user_id", actor.ID, "session_id", stream.SessionID)
	return stream, nil
}

// Metrics reads the ephemeral telemetry of the live broadcast. Missing
// telemetry for a live stream reads as zero.
func (s *streamService) Metrics(ctx context.Context) (*domain.StreamMetrics, error) {
	key, err := liveKey(ctx, s.store)
	if err != nil {
		return nil, err
	}

	m, err := readMetrics(ctx, s.store, key)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return &domain.StreamMetrics{}, nil
	}
	if err != nil {
		return nil, storeErr("read stream metrics", err)
	}
	return &m, nil
}

func validatePatch(p domain.StreamPatch) error {
	if p.Title != nil && len([]rune(*p.Title)) > maxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", domain.ErrValidation, maxTitleLength)
	}
	if p.Description != nil && len([]rune(*p.Description)) > maxDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", domain.ErrValidation, maxDescriptionLength)
	}
	if p.ContentRating != nil {
		if age := p.ContentRating.Age; age < 0 || age > domain.MaxContentRatingAge {
			return fmt.Errorf("%w: content rating age must be between 0 and %d", domain.ErrValidation, domain.MaxContentRatingAge)
		}
	}
	return nil
}
