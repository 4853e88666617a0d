package ports

import (
	"context"
	"time"

	"castline/internal/core/domain"
)

// SessionStore is the fast shared cache holding ephemeral session state.
// Get returns domain.ErrKeyNotFound for absent keys. A zero ttl means no
// expiry.
type SessionStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX stores value only when key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// ProfileMutation edits a fresh copy of the profile. Returning an error
// aborts the update without writing.
type ProfileMutation func(p *domain.Profile) error

type ProfileRepository interface {
	Get(ctx context.Context, id domain.UserID) (*domain.Profile, error)
	GetByStreamKey(ctx context.Context, key domain.StreamKey) (*domain.Profile, error)
	// Create stores p unless a profile with the same id exists, in which case
	// the stored profile is returned.
	Create(ctx context.Context, p *domain.Profile) (*domain.Profile, error)
	// Update applies fn under optimistic versioning, retrying on conflict.
	Update(ctx context.Context, id domain.UserID, fn ProfileMutation) (*domain.Profile, error)
}

// ReactionMutation computes the new reaction list from the current one.
type ReactionMutation func(current []domain.Reaction) ([]domain.Reaction, error)

type MessageRepository interface {
	// Append stores m, assigning its id when empty, and returns the id.
	Append(ctx context.Context, m *domain.Message) (domain.MessageID, error)
	Get(ctx context.Context, id domain.MessageID) (*domain.Message, error)
	// ListBySession returns the timeline ascending by timestamp, ties in
	// insertion order.
	ListBySession(ctx context.Context, session domain.SessionID) ([]*domain.Message, error)
	PatchContent(ctx context.Context, id domain.MessageID, replacement string) (*domain.Message, error)
	SetReactions(ctx context.Context, id domain.MessageID, reactions []domain.Reaction) error
	// ModifyReactions runs fn atomically against the stored reaction list.
	ModifyReactions(ctx context.Context, id domain.MessageID, fn ReactionMutation) ([]domain.Reaction, error)
}

type ChatSettingsRepository interface {
	Get(ctx context.Context) (*domain.ChatSettings, error)
	Save(ctx context.Context, s *domain.ChatSettings) error
}

// StreamMutation edits a fresh copy of the broadcast record. An absent record
// is handed over as an offline stream.
type StreamMutation func(s *domain.Stream) error

// StreamRepository holds the single durable broadcast record.
type StreamRepository interface {
	Current(ctx context.Context) (*domain.Stream, error)
	Save(ctx context.Context, s *domain.Stream) error
	// Update applies fn under optimistic versioning, retrying on conflict.
	Update(ctx context.Context, fn StreamMutation) (*domain.Stream, error)
}

// Locker serializes work on a key across processes.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
}

type Unlock func(ctx context.Context) error
