package services

import (
	"context"
	"errors"
	"time"

	"castline/internal/core/domain"
	"castline/internal/core/ports"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type profileService struct {
	profiles ports.ProfileRepository
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewProfileService(profiles ports.ProfileRepository, logger *zap.SugaredLogger) ports.ProfileService {
	return &profileService{
		profiles: profiles,
		logger:   loggerOrNop(logger),
		now:      time.Now,
	}
}

// Ensure returns the caller's profile, provisioning the default one on the
// first verified identity.
func (s *profileService) Ensure(ctx context.Context, id domain.Identity) (*domain.Profile, error) {
	if id.ID == "" {
		return nil, domain.ErrUnauthenticated
	}

	p, err := s.profiles.Get(ctx, id.ID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrProfileNotFound) {
		return nil, storeErr("load profile", err)
	}

	p, err = s.profiles.Create(ctx, domain.NewProfile(id.ID, s.now()))
	if err != nil {
		return nil, storeErr("create profile", err)
	}
	s.logger.Infow("profile provisioned", "user_id", id.ID)
	return p, nil
}

func (s *profileService) Get(ctx context.Context, id domain.UserID) (*domain.Profile, error) {
	p, err := s.profiles.Get(ctx, id)
	if err != nil {
		return nil, storeErr("load profile", err)
	}
	return p, nil
}

// RegenerateStreamKey issues a new publish credential. The old key stops
// resolving as soon as the update commits.
func (s *profileService) RegenerateStreamKey(ctx context.Context, actor domain.Identity) (domain.StreamKey, error) {
	profile, err := loadActor(ctx, s.profiles, actor)
	if err != nil {
		return "", err
	}
	if err := authorize(profile, domain.PermPublishStream); err != nil {
		return "", err
	}

	if err := checkDeadline(ctx); err != nil {
		return "", err
	}

	key := domain.StreamKey(uuid.NewString())
	updated, err := s.profiles.Update(ctx, actor.ID, func(p *domain.Profile) error {
		p.StreamKey = key
		return nil
	})
	if err != nil {
		return "", storeErr("regenerate stream key", err)
	}

	s.logger.Infow("stream key regenerated", "user_id", actor.ID)
	return updated.StreamKey, nil
}
