package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"castline/internal/core/domain"
	"castline/internal/core/ports"
	"castline/internal/infrastructure/distributed"
	"castline/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/require"
)

const (
	testSession domain.SessionID = "session-1"
	testKey     domain.StreamKey = "key-1"
)

var (
	alice = domain.Identity{ID: "alice", Name: "Alice"}
	bob   = domain.Identity{ID: "bob", Name: "Bob"}
	mod   = domain.Identity{ID: "mod", Name: "Mod"}
	admin = domain.Identity{ID: "admin", Name: "Admin"}
	host  = domain.Identity{ID: "host", Name: "Host"}
)

const moderatorPermissions = domain.DefaultPermissions | domain.PermDeleteMessage | domain.PermMuteUser | domain.PermBanUser

type fixture struct {
	profiles *memory.MemoryProfileRepository
	messages *memory.MemoryMessageRepository
	streams  *memory.MemoryStreamRepository
	store    *memory.MemorySessionStore
	bus      *distributed.Bus
	settings *CachedSettingsService
	registry *CommandRegistry

	chat       ports.ChatService
	moderation ports.ModerationService
	lifecycle  ports.LifecycleService
	stream     ports.StreamService
	profile    ports.ProfileService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		profiles: memory.NewMemoryProfileRepository(),
		messages: memory.NewMemoryMessageRepository(),
		streams:  memory.NewMemoryStreamRepository(),
		store:    memory.NewMemorySessionStore(),
		bus:      distributed.NewLocalBus(distributed.NewHub(64, nil), nil),
		registry: NewCommandRegistry(),
	}
	f.settings = NewSettingsService(f.profiles, memory.NewMemoryChatSettingsRepository(), time.Minute, nil)
	t.Cleanup(f.settings.Close)

	f.stream = NewStreamService(f.profiles, f.streams, f.store, nil)
	f.profile = NewProfileService(f.profiles, nil)
	require.NoError(t, RegisterBuiltinCommands(f.registry, f.stream))

	f.chat = NewChatService(f.profiles, f.messages, f.streams, f.store, f.settings, f.registry, f.bus, nil, nil, DefaultChatOptions())
	f.moderation = NewModerationService(f.profiles, f.messages, f.streams, f.bus, nil, nil, DefaultModerationOptions())
	f.lifecycle = NewLifecycleService(f.profiles, f.streams, f.store, f.bus, memory.NewMemoryLocker(), nil, nil, DefaultLifecycleOptions())

	f.addProfile(t, alice, domain.DefaultPermissions)
	f.addProfile(t, bob, domain.DefaultPermissions)
	f.addProfile(t, mod, moderatorPermissions)
	f.addProfile(t, admin, domain.DefaultPermissions|domain.PermAdministrator)
	return f
}

func (f *fixture) addProfile(t *testing.T, id domain.Identity, perms domain.Permission) *domain.Profile {
	t.Helper()
	p := domain.NewProfile(id.ID, time.Now())
	p.Permissions = perms
	created, err := f.profiles.Create(context.Background(), p)
	require.NoError(t, err)
	return created
}

// goLive puts a broadcast on air without going through the lifecycle.
func (f *fixture) goLive(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.streams.Save(ctx, &domain.Stream{SessionID: testSession, Status: domain.StreamLive, Host: host.ID}))
	require.NoError(t, f.store.Set(ctx, liveKeyPointer, []byte(testKey), 0))
}

func (f *fixture) perms(t *testing.T, id domain.UserID) domain.Permission {
	t.Helper()
	p, err := f.profiles.Get(context.Background(), id)
	require.NoError(t, err)
	return p.Permissions
}

// watch subscribes to channel and consumes the subscription-succeeded event.
func (f *fixture) watch(t *testing.T, channel string) <-chan domain.Event {
	t.Helper()

	var member *domain.Member
	if domain.IsPresenceChannel(channel) {
		member = &domain.Member{ID: "observer"}
	}
	sub, err := f.bus.Subscribe(context.Background(), channel, member)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	ev := nextEvent(t, sub.Events())
	require.Equal(t, domain.EventSubscriptionSucceeded, ev.Name)
	return sub.Events()
}

func nextEvent(t *testing.T, events <-chan domain.Event) domain.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return domain.Event{}
	}
}

func noEvent(t *testing.T, events <-chan domain.Event) {
	t.Helper()
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %s", ev.Name)
	default:
	}
}

func decodeEvent[T any](t *testing.T, ev domain.Event) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(ev.Data, &out))
	return out
}
