package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"castline/internal/core/ports"
	"castline/pkg/distributed"
)

// MemoryLocker serializes on a key within one process.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]chan struct{})}
}

var _ ports.Locker = (*MemoryLocker)(nil)

func (l *MemoryLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[key] = s
	}
	return s
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ports.Unlock, error) {
	s := l.slot(key)

	timer := time.NewTimer(ttl)
	defer timer.Stop()

	select {
	case s <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s", distributed.ErrLockTimeout, key)
	}

	var once sync.Once
	return func(context.Context) error {
		released := false
		once.Do(func() {
			<-s
			released = true
		})
		if !released {
			return distributed.ErrLockNotHeld
		}
		return nil
	}, nil
}
