package distributed

import (
	"context"
	"fmt"
	"time"

	"castline/internal/core/domain"
	"castline/internal/core/ports"
	"castline/pkg/tracing"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	presenceTTL   = 24 * time.Hour
	leaveTimeout  = 3 * time.Second
	busKeyPattern = "bus:"
)

// Bus implements ports.Bus on top of a local Hub. How an event reaches the
// hub depends on the constructor: NewLocalBus delivers in-process,
// NewRedisBus goes through Redis pub/sub so every process sees it.
type Bus struct {
	hub        *Hub
	presence   presenceStore
	send       func(ctx context.Context, ev domain.Event) error
	instanceID string
	logger     *zap.SugaredLogger
	now        func() time.Time
}

var _ ports.Bus = (*Bus)(nil)

// NewLocalBus is for single-process deployments and tests.
func NewLocalBus(hub *Hub, logger *zap.SugaredLogger) *Bus {
	b := newBus(hub, newMemoryPresence(), logger)
	b.send = func(_ context.Context, ev domain.Event) error {
		hub.Deliver(ev)
		return nil
	}
	return b
}

func newBus(hub *Hub, presence presenceStore, logger *zap.SugaredLogger) *Bus {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Bus{
		hub:        hub,
		presence:   presence,
		instanceID: uuid.NewString(),
		logger:     logger,
		now:        time.Now,
	}
}

func (b *Bus) Hub() *Hub {
	return b.hub
}

func (b *Bus) Publish(ctx context.Context, channel, event string, payload any) error {
	if channel == "" || event == "" {
		return fmt.Errorf("%w: channel and event are required", domain.ErrValidation)
	}

	ctx, span := tracing.TraceBusPublish(ctx, channel, event)
	defer span.End()

	data, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}

	ev := domain.Event{
		Channel:   channel,
		Name:      event,
		Data:      data,
		Publisher: b.instanceID,
		Timestamp: b.now(),
	}
	if err := b.send(ctx, ev); err != nil {
		tracing.RecordError(ctx, err)
		return domain.Unavailable("publish "+event, err)
	}

	b.logger.Debugw("published event", "channel", channel, "event", event)
	return nil
}

// Subscribe attaches to channel until the returned subscription is closed or
// ctx ends. The first event is always subscription-succeeded; on presence
// channels it carries the member snapshot.
func (b *Bus) Subscribe(ctx context.Context, channel string, member *domain.Member) (ports.Subscription, error) {
	if channel == "" {
		return nil, fmt.Errorf("%w: channel is required", domain.ErrValidation)
	}
	presence := domain.IsPresenceChannel(channel)
	if presence && (member == nil || member.ID == "") {
		return nil, fmt.Errorf("%w: presence channels require a member", domain.ErrValidation)
	}

	sub := b.hub.attach(channel, member)

	snapshot := []byte("{}")
	if presence {
		first, err := b.presence.join(ctx, channel, *member)
		if err != nil {
			b.hub.detach(sub)
			return nil, domain.Unavailable("join presence", err)
		}

		members, err := b.presence.members(ctx, channel)
		if err != nil {
			b.logger.Warnw("failed to read presence members", "channel", channel, "error", err)
			members = []domain.Member{*member}
		}
		snapshot, _ = sonic.Marshal(domain.PresenceSnapshot{Count: len(members), Members: members})

		if first {
			if err := b.Publish(ctx, channel, domain.EventMemberAdded, member); err != nil {
				b.logger.Warnw("failed to announce member", "channel", channel, "error", err)
			}
		}
	}

	b.hub.activate(sub, domain.Event{
		Channel:   channel,
		Name:      domain.EventSubscriptionSucceeded,
		Data:      snapshot,
		Publisher: b.instanceID,
		Timestamp: b.now(),
	})

	sub.closeFn = func() error {
		if !b.hub.detach(sub) || !presence {
			return nil
		}
		leaveCtx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancel()

		last, err := b.presence.leave(leaveCtx, channel, member.ID)
		if err != nil {
			b.logger.Warnw("failed to leave presence", "channel", channel, "error", err)
			return err
		}
		if last {
			return b.Publish(leaveCtx, channel, domain.EventMemberRemoved, member)
		}
		return nil
	}
	context.AfterFunc(ctx, func() { _ = sub.Close() })

	return sub, nil
}

func (b *Bus) Members(ctx context.Context, channel string) ([]domain.Member, error) {
	if !domain.IsPresenceChannel(channel) {
		return nil, fmt.Errorf("%w: %s is not a presence channel", domain.ErrValidation, channel)
	}
	members, err := b.presence.members(ctx, channel)
	if err != nil {
		return nil, domain.Unavailable("read presence", err)
	}
	return members, nil
}

// RedisBus publishes through Redis and delivers what Redis hands back to
// the local hub. Run must be running for subscribers to receive anything.
type RedisBus struct {
	*Bus
	client *redis.Client
	prefix string
	ready  chan struct{}
}

func NewRedisBus(client *redis.Client, prefix string, hub *Hub, logger *zap.SugaredLogger) *RedisBus {
	b := newBus(hub, &redisPresence{client: client, prefix: prefix, ttl: presenceTTL}, logger)
	rb := &RedisBus{
		Bus:    b,
		client: client,
		prefix: prefix,
		ready:  make(chan struct{}),
	}
	b.send = rb.send
	return rb
}

func (rb *RedisBus) channelKey(channel string) string {
	return rb.prefix + busKeyPattern + channel
}

func (rb *RedisBus) send(ctx context.Context, ev domain.Event) error {
	data, err := sonic.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return rb.client.Publish(ctx, rb.channelKey(ev.Channel), data).Err()
}

// Ready is closed once the Redis subscription is confirmed.
func (rb *RedisBus) Ready() <-chan struct{} {
	return rb.ready
}

// Run receives bus traffic until ctx ends.
func (rb *RedisBus) Run(ctx context.Context) error {
	pubsub := rb.client.PSubscribe(ctx, rb.channelKey("*"))
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to bus: %w", err)
	}
	close(rb.ready)
	rb.logger.Infow("bus subscribed", "pattern", rb.channelKey("*"), "instance_id", rb.instanceID)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev domain.Event
			if err := sonic.UnmarshalString(msg.Payload, &ev); err != nil {
				rb.logger.Warnw("failed to unmarshal event",
					"error", err,
					"channel", msg.Channel,
				)
				continue
			}
			rb.hub.Deliver(ev)
		}
	}
}
