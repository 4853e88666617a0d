package services

import (
	"context"
	"errors"
	"time"

	"castline/internal/core/domain"
	"castline/internal/core/ports"
	"castline/pkg/cache"

	"go.uber.org/zap"
)

const settingsCacheKey = "chat:settings"

type cachedSettings struct {
	settings *domain.ChatSettings
	filter   *domain.Filter
}

// CachedSettingsService keeps a per-process copy of the chat settings. Another
// process sees an update once its cache entry expires.
type CachedSettingsService struct {
	profiles ports.ProfileRepository
	repo     ports.ChatSettingsRepository
	cache    *cache.Cache[*cachedSettings]
	logger   *zap.SugaredLogger
}

func NewSettingsService(
	profiles ports.ProfileRepository,
	repo ports.ChatSettingsRepository,
	ttl time.Duration,
	logger *zap.SugaredLogger,
) *CachedSettingsService {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &CachedSettingsService{
		profiles: profiles,
		repo:     repo,
		cache:    cache.New[*cachedSettings](ttl),
		logger:   loggerOrNop(logger),
	}
}

func (s *CachedSettingsService) Get(ctx context.Context, actor domain.Identity) (*domain.ChatSettings, error) {
	profile, err := loadActor(ctx, s.profiles, actor)
	if err != nil {
		return nil, err
	}
	if err := authorize(profile, domain.PermAdministrator); err != nil {
		return nil, err
	}

	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return c.settings, nil
}

func (s *CachedSettingsService) Update(ctx context.Context, actor domain.Identity, settings *domain.ChatSettings) (*domain.ChatSettings, error) {
	profile, err := loadActor(ctx, s.profiles, actor)
	if err != nil {
		return nil, err
	}
	if err := authorize(profile, domain.PermAdministrator); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if settings.AutoModeration.Blacklist == nil {
		settings.AutoModeration.Blacklist = []string{}
	}
	if settings.AutoModeration.RegexPatterns == nil {
		settings.AutoModeration.RegexPatterns = []string{}
	}

	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, settings); err != nil {
		return nil, storeErr("save chat settings", err)
	}

	s.cache.Invalidate(settingsCacheKey)
	s.logger.Infow("chat settings updated",
		"user_id", actor.ID,
		"enable_chat", settings.EnableChat,
		"blacklist", len(settings.AutoModeration.Blacklist),
		"patterns", len(settings.AutoModeration.RegexPatterns),
	)
	return settings, nil
}

// IsEnabled is public. Absent settings mean chat is enabled.
func (s *CachedSettingsService) IsEnabled(ctx context.Context) (bool, error) {
	c, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	return c.settings.EnableChat, nil
}

func (s *CachedSettingsService) Filter(ctx context.Context) (*domain.Filter, error) {
	c, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return c.filter, nil
}

func (s *CachedSettingsService) Close() {
	s.cache.Stop()
}

func (s *CachedSettingsService) load(ctx context.Context) (*cachedSettings, error) {
	return s.cache.GetOrLoad(ctx, settingsCacheKey, func(ctx context.Context) (*cachedSettings, error) {
		settings, err := s.repo.Get(ctx)
		if errors.Is(err, domain.ErrSettingsNotFound) {
			settings = domain.DefaultChatSettings()
		} else if err != nil {
			return nil, storeErr("load chat settings", err)
		}
		return &cachedSettings{settings: settings, filter: settings.Compile()}, nil
	})
}

var _ ports.SettingsService = (*CachedSettingsService)(nil)
