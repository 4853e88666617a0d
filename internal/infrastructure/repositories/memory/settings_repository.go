package memory

import (
	"context"
	"sync"

	"castline/internal/core/domain"
	"castline/internal/core/ports"
)

type MemoryChatSettingsRepository struct {
	settings *domain.ChatSettings
	mu       sync.RWMutex
}

func NewMemoryChatSettingsRepository() *MemoryChatSettingsRepository {
	return &MemoryChatSettingsRepository{}
}

var _ ports.ChatSettingsRepository = (*MemoryChatSettingsRepository)(nil)

func (r *MemoryChatSettingsRepository) Get(ctx context.Context) (*domain.ChatSettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.settings == nil {
		return nil, domain.ErrSettingsNotFound
	}
	return cloneSettings(r.settings), nil
}

func (r *MemoryChatSettingsRepository) Save(ctx context.Context, s *domain.ChatSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = cloneSettings(s)
	return nil
}

func cloneSettings(s *domain.ChatSettings) *domain.ChatSettings {
	c := *s
	c.AutoModeration.Blacklist = append([]string{}, s.AutoModeration.Blacklist...)
	c.AutoModeration.RegexPatterns = append([]string{}, s.AutoModeration.RegexPatterns...)
	return &c
}
