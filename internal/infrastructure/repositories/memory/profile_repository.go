package memory

import (
	"context"
	"sync"
	"time"

	"castline/internal/core/domain"
	"castline/internal/core/ports"
)

type MemoryProfileRepository struct {
	profiles map[domain.UserID]*domain.Profile
	keys     map[domain.StreamKey]domain.UserID
	mu       sync.RWMutex
}

func NewMemoryProfileRepository() *MemoryProfileRepository {
	return &MemoryProfileRepository{
		profiles: make(map[domain.UserID]*domain.Profile),
		keys:     make(map[domain.StreamKey]domain.UserID),
	}
}

var _ ports.ProfileRepository = (*MemoryProfileRepository)(nil)

func (r *MemoryProfileRepository) Get(ctx context.Context, id domain.UserID) (*domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return p.Clone(), nil
}

func (r *MemoryProfileRepository) GetByStreamKey(ctx context.Context, key domain.StreamKey) (*domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.keys[key]
	if !ok || key == "" {
		return nil, domain.ErrProfileNotFound
	}
	p, ok := r.profiles[id]
	if !ok || p.StreamKey != key {
		return nil, domain.ErrProfileNotFound
	}
	return p.Clone(), nil
}

func (r *MemoryProfileRepository) Create(ctx context.Context, p *domain.Profile) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.profiles[p.ID]; ok {
		return existing.Clone(), nil
	}

	stored := p.Clone()
	stored.Version = 1
	r.profiles[stored.ID] = stored
	if stored.StreamKey != "" {
		r.keys[stored.StreamKey] = stored.ID
	}
	return stored.Clone(), nil
}

// Update holds the write lock for the whole mutation, which gives the same
// outcome as a conflict-free optimistic update.
func (r *MemoryProfileRepository) Update(ctx context.Context, id domain.UserID, fn ports.ProfileMutation) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.profiles[id]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.Version = current.Version + 1
	next.UpdatedAt = time.Now()

	if next.StreamKey != current.StreamKey {
		delete(r.keys, current.StreamKey)
		if next.StreamKey != "" {
			r.keys[next.StreamKey] = next.ID
		}
	}
	r.profiles[id] = next
	return next.Clone(), nil
}
