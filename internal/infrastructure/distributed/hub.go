package distributed

import (
	"sync"
	"sync/atomic"

	"castline/internal/core/domain"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

const defaultBufferSize = 256

// Hub fans events out to the subscribers attached in this process. Sends
// never block: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*subscription]struct{}
	buffer   int
	dropped  atomic.Uint64
	logger   *zap.SugaredLogger
}

func NewHub(buffer int, logger *zap.SugaredLogger) *Hub {
	if buffer <= 0 {
		buffer = defaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{
		channels: make(map[string]map[*subscription]struct{}),
		buffer:   buffer,
		logger:   logger,
	}
}

// Deliver hands ev to every subscriber of ev.Channel.
func (h *Hub) Deliver(ev domain.Event) {
	self := presenceSubject(ev)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.channels[ev.Channel] {
		if self != "" && sub.member != nil && sub.member.ID == self {
			continue
		}
		if !sub.ready {
			h.hold(sub, ev)
			continue
		}
		h.send(sub, ev)
	}
}

func (h *Hub) send(sub *subscription, ev domain.Event) {
	select {
	case sub.events <- ev:
	default:
		h.dropped.Add(1)
		h.logger.Debugw("subscriber buffer full, dropping event",
			"channel", ev.Channel,
			"event", ev.Name,
		)
	}
}

// hold parks ev until the subscriber has been handed its first event.
func (h *Hub) hold(sub *subscription, ev domain.Event) {
	sub.pendingMu.Lock()
	defer sub.pendingMu.Unlock()

	if len(sub.pending) >= h.buffer {
		h.dropped.Add(1)
		return
	}
	sub.pending = append(sub.pending, ev)
}

// Dropped is the number of events lost to full subscriber buffers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Count returns the number of local subscribers on channel.
func (h *Hub) Count(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

func (h *Hub) attach(channel string, member *domain.Member) *subscription {
	sub := &subscription{
		channel: channel,
		member:  member,
		events:  make(chan domain.Event, h.buffer),
	}

	h.mu.Lock()
	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[*subscription]struct{})
		h.channels[channel] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// detach removes sub and closes its event channel. It reports false if sub
// was already detached.
func (h *Hub) detach(sub *subscription) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.channels[sub.channel]
	if _, ok := subs[sub]; !ok {
		return false
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.channels, sub.channel)
	}
	close(sub.events)
	return true
}

// activate hands sub its first event, then whatever was delivered while it
// was being set up. Fan-out is blocked meanwhile, so first stays first.
func (h *Hub) activate(sub *subscription, first domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.channels[sub.channel][sub]; !ok {
		return
	}
	h.send(sub, first)

	sub.pendingMu.Lock()
	for _, ev := range sub.pending {
		h.send(sub, ev)
	}
	sub.pending = nil
	sub.pendingMu.Unlock()

	sub.ready = true
}

// presenceSubject returns the member a presence event is about, so the
// member's own subscription can skip it.
func presenceSubject(ev domain.Event) domain.UserID {
	if ev.Name != domain.EventMemberAdded && ev.Name != domain.EventMemberRemoved {
		return ""
	}
	var m domain.Member
	if err := sonic.Unmarshal(ev.Data, &m); err != nil {
		return ""
	}
	return m.ID
}

type subscription struct {
	channel string
	member  *domain.Member
	events  chan domain.Event
	closeFn func() error
	once    sync.Once
	err     error

	// ready is written under Hub.mu held exclusively.
	ready     bool
	pendingMu sync.Mutex
	pending   []domain.Event
}

func (s *subscription) Channel() string {
	return s.channel
}

func (s *subscription) Events() <-chan domain.Event {
	return s.events
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		if s.closeFn != nil {
			s.err = s.closeFn()
		}
	})
	return s.err
}
