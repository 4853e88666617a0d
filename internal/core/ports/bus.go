package ports

import (
	"context"

	"castline/internal/core/domain"
)

// Bus is the real-time fan-out channel abstraction. Delivery is best effort
// and at most once per subscriber; order is kept per publisher per channel.
type Bus interface {
	Publish(ctx context.Context, channel, event string, payload any) error
	// Subscribe attaches a subscriber for the lifetime of the returned
	// Subscription. member is required on presence channels and ignored
	// elsewhere.
	Subscribe(ctx context.Context, channel string, member *domain.Member) (Subscription, error)
	Members(ctx context.Context, channel string) ([]domain.Member, error)
}

type Subscription interface {
	Channel() string
	Events() <-chan domain.Event
	Close() error
}
