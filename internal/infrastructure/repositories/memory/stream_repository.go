package memory

import (
	"context"
	"sync"

	"castline/internal/core/domain"
	"castline/internal/core/ports"
)

type MemoryStreamRepository struct {
	stream *domain.Stream
	mu     sync.RWMutex
}

func NewMemoryStreamRepository() *MemoryStreamRepository {
	return &MemoryStreamRepository{}
}

var _ ports.StreamRepository = (*MemoryStreamRepository)(nil)

func (r *MemoryStreamRepository) Current(ctx context.Context) (*domain.Stream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.stream == nil {
		return nil, domain.ErrStreamNotFound
	}
	s := *r.stream
	return &s, nil
}

func (r *MemoryStreamRepository) Save(ctx context.Context, stream *domain.Stream) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := *stream
	r.stream = &s
	return nil
}

func (r *MemoryStreamRepository) Update(ctx context.Context, fn ports.StreamMutation) (*domain.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := domain.Stream{Status: domain.StreamOffline}
	if r.stream != nil {
		next = *r.stream
	}
	if err := fn(&next); err != nil {
		return nil, err
	}
	r.stream = &next
	out := next
	return &out, nil
}
