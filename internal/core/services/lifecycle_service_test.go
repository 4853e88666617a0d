package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"castline/internal/core/domain"
	"castline/internal/infrastructure/distributed"
	"castline/internal/infrastructure/repositories/memory"
	"castline/pkg/circuitbreaker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) addHost(t *testing.T) {
	t.Helper()
	p := domain.NewProfile(host.ID, time.Now())
	p.Permissions = domain.DefaultPermissions | domain.PermPublishStream
	p.StreamKey = testKey
	_, err := f.profiles.Create(context.Background(), p)
	require.NoError(t, err)
}

func TestLifecycleService_PublishAttemptRejectsUnknownKey(t *testing.T) {
	f := newFixture(t)
	f.addHost(t)
	ctx := context.Background()
	events := f.watch(t, domain.PlatformChannel)

	assert.ErrorIs(t, f.lifecycle.PublishAttempt(ctx, "wrong"), domain.ErrCredentialRejected)
	assert.ErrorIs(t, f.lifecycle.PublishAttempt(ctx, ""), domain.ErrCredentialRejected)
	noEvent(t, events)

	_, err := f.store.Get(ctx, liveKeyPointer)
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)
	_, err = f.streams.Current(ctx)
	assert.ErrorIs(t, err, domain.ErrStreamNotFound)
}

func TestLifecycleService_PublishEndIgnoresForeignKey(t *testing.T) {
	f := newFixture(t)
	f.addHost(t)
	ctx := context.Background()

	require.NoError(t, f.lifecycle.PublishAttempt(ctx, testKey))
	before, err := f.streams.Current(ctx)
	require.NoError(t, err)
	events := f.watch(t, domain.PlatformChannel)

	assert.ErrorIs(t, f.lifecycle.PublishAttempt(ctx, "bogus"), domain.ErrCredentialRejected)
	require.NoError(t, f.lifecycle.PublishEnd(ctx, "bogus"))
	noEvent(t, events)

	stream, err := f.streams.Current(ctx)
	require.NoError(t, err)
	assert.True(t, stream.IsLive())
	assert.Equal(t, before.SessionID, stream.SessionID)

	live, err := f.store.Get(ctx, liveKeyPointer)
	require.NoError(t, err)
	assert.Equal(t, string(testKey), string(live))

	status, err := f.store.Get(ctx, statusKey(testKey))
	require.NoError(t, err)
	assert.Equal(t, "live", string(status))
	status, err = f.store.Get(ctx, statusKey("bogus"))
	require.NoError(t, err)
	assert.Equal(t, "offline", string(status))

	p, err := f.profiles.Get(ctx, host.ID)
	require.NoError(t, err)
	assert.True(t, p.Flags.Has(domain.FlagHost))
}

func TestLifecycleService_PublishAttemptGoesLive(t *testing.T) {
	f := newFixture(t)
	f.addHost(t)
	ctx := context.Background()
	events := f.watch(t, domain.PlatformChannel)

	require.NoError(t, f.lifecycle.PublishAttempt(ctx, testKey))

	stream, err := f.streams.Current(ctx)
	require.NoError(t, err)
	assert.True(t, stream.IsLive())
	assert.Equal(t, host.ID, stream.Host)
	assert.NotEmpty(t, stream.SessionID)

	live, err := f.store.Get(ctx, liveKeyPointer)
	require.NoError(t, err)
	assert.Equal(t, string(testKey), string(live))

	status, err := f.store.Get(ctx, statusKey(testKey))
	require.NoError(t, err)
	assert.Equal(t, "live", string(status))

	p, err := f.profiles.Get(ctx, host.ID)
	require.NoError(t, err)
	assert.True(t, p.Flags.Has(domain.FlagHost))
	assert.False(t, p.Flags.Has(domain.FlagViewer))

	ev := nextEvent(t, events)
	assert.Equal(t, domain.EventStartBroadcast, ev.Name)
	payload := decodeEvent[domain.BroadcastPayload](t, ev)
	require.NotNil(t, payload.Profile)
	assert.Equal(t, host.ID, payload.Profile.ID)
	assert.Empty(t, payload.Profile.StreamKey)
}

func TestLifecycleService_EachPublishStartsNewSession(t *testing.T) {
	f := newFixture(t)
	f.addHost(t)
	ctx := context.Background()

	require.NoError(t, f.lifecycle.PublishAttempt(ctx, testKey))
	first, err := f.streams.Current(ctx)
	require.NoError(t, err)
	_, err = f.chat.Send(ctx, alice, "first broadcast", domain.MessageUser)
	require.NoError(t, err)
	f.lifecycle.ViewerJoined(ctx, testKey)
	f.lifecycle.ViewerJoined(ctx, testKey)
	f.lifecycle.MediaSample(ctx, testKey, 3000, 30)

	require.NoError(t, f.lifecycle.PublishEnd(ctx, testKey))
	require.NoError(t, f.lifecycle.PublishAttempt(ctx, testKey))
	second, err := f.streams.Current(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	history, err := f.chat.History(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, history)

	m, err := f.stream.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StreamMetrics{}, *m)
}

func TestLifecycleService_IgnoresCallbacksForKeysNotLive(t *testing.T) {
	f := newFixture(t)
	f.addHost(t)
	ctx := context.Background()
	require.NoError(t, f.lifecycle.PublishAttempt(ctx, testKey))

	f.lifecycle.ViewerJoined(ctx, "bogus")
	f.lifecycle.ViewerLeft(ctx, "bogus")
	f.lifecycle.MediaSample(ctx, "bogus", 1000, 30)

	exists, err := f.store.Exists(ctx, metricsKey("bogus"))
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, f.lifecycle.PublishEnd(ctx, testKey))
	f.lifecycle.ViewerJoined(ctx, testKey)
	_, err = f.stream.Metrics(ctx)
	assert.ErrorIs(t, err, domain.ErrNotLive)
}

func TestLifecycleService_PublishEnd(t *testing.T) {
	f := newFixture(t)
	f.addHost(t)
	ctx := context.Background()

	require.NoError(t, f.lifecycle.PublishAttempt(ctx, testKey))
	events := f.watch(t, domain.PlatformChannel)

	require.NoError(t, f.lifecycle.PublishEnd(ctx, testKey))

	stream, err := f.streams.Current(ctx)
	require.NoError(t, err)
	assert.False(t, stream.IsLive())

	_, err = f.store.Get(ctx, liveKeyPointer)
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)

	p, err := f.profiles.Get(ctx, host.ID)
	require.NoError(t, err)
	assert.True(t, p.Flags.Has(domain.FlagViewer))
	assert.False(t, p.Flags.Has(domain.FlagHost))

	assert.Equal(t, domain.EventEndBroadcast, nextEvent(t, events).Name)

	_, err = f.stream.Metrics(ctx)
	assert.ErrorIs(t, err, domain.ErrNotLive)
}

func TestLifecycleService_ViewersNeverNegative(t *testing.T) {
	f := newFixture(t)
	f.addHost(t)
	ctx := context.Background()
	require.NoError(t, f.lifecycle.PublishAttempt(ctx, testKey))

	f.lifecycle.ViewerJoined(ctx, testKey)
	f.lifecycle.ViewerJoined(ctx, testKey)
	m, err := f.stream.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Viewers)

	for i := 0; i < 3; i++ {
		f.lifecycle.ViewerLeft(ctx, testKey)
	}
	m, err = f.stream.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Viewers)
}

func TestLifecycleService_MediaSample(t *testing.T) {
	f := newFixture(t)
	f.addHost(t)
	ctx := context.Background()
	require.NoError(t, f.lifecycle.PublishAttempt(ctx, testKey))
	f.lifecycle.ViewerJoined(ctx, testKey)

	f.lifecycle.MediaSample(ctx, testKey, 4500, 59.94)

	m, err := f.stream.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Viewers)
	assert.Equal(t, 4500, m.Bitrate)
	assert.InDelta(t, 59.94, m.FPS, 0.001)
}

type failingStore struct {
	*memory.MemorySessionStore
	calls int
}

func (s *failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.calls++
	return nil, errors.New("connection refused")
}

func TestLifecycleService_MediaSampleTripsBreaker(t *testing.T) {
	store := &failingStore{MemorySessionStore: memory.NewMemorySessionStore()}
	bus := distributed.NewLocalBus(distributed.NewHub(8, nil), nil)
	opts := DefaultLifecycleOptions()
	opts.Breaker = circuitbreaker.Config{
		FailureThreshold:    2,
		SuccessThreshold:    1,
		Timeout:             time.Hour,
		MaxRequestsHalfOpen: 1,
	}
	svc := NewLifecycleService(memory.NewMemoryProfileRepository(), memory.NewMemoryStreamRepository(), store, bus, nil, nil, nil, opts)

	for i := 0; i < 5; i++ {
		svc.MediaSample(context.Background(), testKey, 1000, 30)
	}
	assert.Equal(t, 2, store.calls)
	assert.Equal(t, circuitbreaker.StateOpen, svc.(*lifecycleService).breaker.State())
}
