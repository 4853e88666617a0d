package distributed

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"castline/internal/core/domain"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// presenceStore counts connections per member. A member with several
// connections is present until the last one leaves.
type presenceStore interface {
	join(ctx context.Context, channel string, m domain.Member) (first bool, err error)
	leave(ctx context.Context, channel string, id domain.UserID) (last bool, err error)
	members(ctx context.Context, channel string) ([]domain.Member, error)
}

type memoryPresence struct {
	mu       sync.Mutex
	channels map[string]map[domain.UserID]*presenceEntry
}

type presenceEntry struct {
	member domain.Member
	count  int
}

func newMemoryPresence() *memoryPresence {
	return &memoryPresence{channels: make(map[string]map[domain.UserID]*presenceEntry)}
}

func (p *memoryPresence) join(_ context.Context, channel string, m domain.Member) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries, ok := p.channels[channel]
	if !ok {
		entries = make(map[domain.UserID]*presenceEntry)
		p.channels[channel] = entries
	}
	e, ok := entries[m.ID]
	if !ok {
		e = &presenceEntry{member: m}
		entries[m.ID] = e
	}
	e.count++
	return e.count == 1, nil
}

func (p *memoryPresence) leave(_ context.Context, channel string, id domain.UserID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.channels[channel][id]
	if !ok {
		return false, nil
	}
	e.count--
	if e.count > 0 {
		return false, nil
	}
	delete(p.channels[channel], id)
	if len(p.channels[channel]) == 0 {
		delete(p.channels, channel)
	}
	return true, nil
}

func (p *memoryPresence) members(_ context.Context, channel string) ([]domain.Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.Member, 0, len(p.channels[channel]))
	for _, e := range p.channels[channel] {
		out = append(out, e.member)
	}
	sortMembers(out)
	return out, nil
}

// redisPresence keeps a connection counter hash and a member info hash per
// channel. Both expire after ttl without activity so a crashed process
// cannot pin members forever.
type redisPresence struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

var leaveScript = redis.NewScript(`
local n = redis.call("hincrby", KEYS[1], ARGV[1], -1)
if n <= 0 then
	redis.call("hdel", KEYS[1], ARGV[1])
	redis.call("hdel", KEYS[2], ARGV[1])
	return 1
end
return 0
`)

func (p *redisPresence) countsKey(channel string) string {
	return p.prefix + "presence:" + channel + ":count"
}

func (p *redisPresence) infoKey(channel string) string {
	return p.prefix + "presence:" + channel + ":info"
}

func (p *redisPresence) join(ctx context.Context, channel string, m domain.Member) (bool, error) {
	info, err := sonic.Marshal(m)
	if err != nil {
		return false, fmt.Errorf("failed to marshal member: %w", err)
	}

	var incr *redis.IntCmd
	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, p.countsKey(channel), string(m.ID), 1)
		pipe.HSet(ctx, p.infoKey(channel), string(m.ID), info)
		pipe.Expire(ctx, p.countsKey(channel), p.ttl)
		pipe.Expire(ctx, p.infoKey(channel), p.ttl)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to join presence: %w", err)
	}
	return incr.Val() == 1, nil
}

func (p *redisPresence) leave(ctx context.Context, channel string, id domain.UserID) (bool, error) {
	last, err := leaveScript.Run(ctx, p.client, []string{p.countsKey(channel), p.infoKey(channel)}, string(id)).Int()
	if err != nil {
		return false, fmt.Errorf("failed to leave presence: %w", err)
	}
	return last == 1, nil
}

func (p *redisPresence) members(ctx context.Context, channel string) ([]domain.Member, error) {
	raw, err := p.client.HGetAll(ctx, p.infoKey(channel)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read presence: %w", err)
	}

	out := make([]domain.Member, 0, len(raw))
	for _, v := range raw {
		var m domain.Member
		if err := sonic.UnmarshalString(v, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	sortMembers(out)
	return out, nil
}

func sortMembers(ms []domain.Member) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].ID < ms[j].ID })
}
