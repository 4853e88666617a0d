package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"castline/internal/core/domain"
	"castline/internal/core/ports"

	"github.com/oklog/ulid/v2"
)

type MemoryMessageRepository struct {
	messages  map[domain.MessageID]*domain.Message
	timelines map[domain.SessionID][]domain.MessageID
	mu        sync.RWMutex
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{
		messages:  make(map[domain.MessageID]*domain.Message),
		timelines: make(map[domain.SessionID][]domain.MessageID),
	}
}

var _ ports.MessageRepository = (*MemoryMessageRepository)(nil)

func (r *MemoryMessageRepository) Append(ctx context.Context, m *domain.Message) (domain.MessageID, error) {
	if m.SessionID == "" {
		return "", fmt.Errorf("%w: message has no session", domain.ErrValidation)
	}

	stored := m.Clone()
	if stored.ID == "" {
		stored.ID = domain.MessageID(ulid.Make().String())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages[stored.ID] = stored
	r.timelines[stored.SessionID] = append(r.timelines[stored.SessionID], stored.ID)
	return stored.ID, nil
}

func (r *MemoryMessageRepository) Get(ctx context.Context, id domain.MessageID) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.messages[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return m.Clone(), nil
}

// ListBySession sorts by timestamp; the stable sort keeps insertion order
// for equal timestamps.
func (r *MemoryMessageRepository) ListBySession(ctx context.Context, session domain.SessionID) ([]*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.timelines[session]
	out := make([]*domain.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.messages[id].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func (r *MemoryMessageRepository) PatchContent(ctx context.Context, id domain.MessageID, replacement string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	m.Redact(replacement)
	return m.Clone(), nil
}

func (r *MemoryMessageRepository) SetReactions(ctx context.Context, id domain.MessageID, reactions []domain.Reaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return domain.ErrMessageNotFound
	}
	m.Reactions = domain.NormalizeReactions(reactions)
	return nil
}

func (r *MemoryMessageRepository) ModifyReactions(ctx context.Context, id domain.MessageID, fn ports.ReactionMutation) ([]domain.Reaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[id]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	next, err := fn(domain.CloneReactions(m.Reactions))
	if err != nil {
		return nil, err
	}
	m.Reactions = next
	return domain.CloneReactions(next), nil
}
