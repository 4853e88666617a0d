package services

import (
	"context"
	"errors"
	"time"

	"castline/internal/core/domain"
	"castline/internal/core/ports"
	"castline/pkg/circuitbreaker"
	"castline/pkg/tracing"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type LifecycleOptions struct {
	LockTTL       time.Duration
	SampleTimeout time.Duration
	Breaker       circuitbreaker.Config
}

func DefaultLifecycleOptions() LifecycleOptions {
	return LifecycleOptions{
		LockTTL:       10 * time.Second,
		SampleTimeout: 250 * time.Millisecond,
		Breaker:       circuitbreaker.DefaultConfig(),
	}
}

type lifecycleService struct {
	profiles ports.ProfileRepository
	streams  ports.StreamRepository
	store    ports.SessionStore
	locker   ports.Locker
	out      broadcaster
	breaker  *circuitbreaker.CircuitBreaker
	metrics  ports.MetricsCollector
	logger   *zap.SugaredLogger
	opts     LifecycleOptions
	now      func() time.Time
}

func NewLifecycleService(
	profiles ports.ProfileRepository,
	streams ports.StreamRepository,
	store ports.SessionStore,
	bus ports.Bus,
	locker ports.Locker,
	metrics ports.MetricsCollector,
	logger *zap.SugaredLogger,
	opts LifecycleOptions,
) ports.LifecycleService {
	metrics = metricsOrNoop(metrics)
	logger = loggerOrNop(logger)
	defaults := DefaultLifecycleOptions()
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaults.LockTTL
	}
	if opts.SampleTimeout <= 0 {
		opts.SampleTimeout = defaults.SampleTimeout
	}

	breaker := circuitbreaker.New(opts.Breaker)
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("media sample breaker changed state", "from", from, "to", to)
	})

	return &lifecycleService{
		profiles: profiles,
		streams:  streams,
		store:    store,
		locker:   locker,
		out:      broadcaster{bus: bus, metrics: metrics, logger: logger},
		breaker:  breaker,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

func (s *lifecycleService) PublishAttempt(ctx context.Context, key domain.StreamKey) error {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.publish_attempt")
	defer span.End()

	if key == "" {
		s.metrics.RecordLifecycle("publish", "rejected")
		return domain.ErrCredentialRejected
	}

	unlock := s.lock(ctx, key)
	defer unlock()

	profile, err := s.profiles.GetByStreamKey(ctx, key)
	if errors.Is(err, domain.ErrProfileNotFound) {
		s.metrics.RecordLifecycle("publish", "rejected")
		s.logger.Infow("stream rejected for invalid stream key")
		return domain.ErrCredentialRejected
	}
	if err != nil {
		s.metrics.RecordLifecycle("publish", "error")
		s.logger.Warnw("failed to validate stream key, rejecting publish", "error", err)
		return storeErr("validate stream key", err)
	}

	if err := checkDeadline(ctx); err != nil {
		s.metrics.RecordLifecycle("publish", "error")
		return err
	}

	now := s.now()
	session := domain.SessionID(uuid.NewString())

	if _, err := s.streams.Update(ctx, func(stream *domain.Stream) error {
		if stream.IsLive() && stream.Host != profile.ID {
			s.logger.Infow("replacing live session", "previous_session", stream.SessionID, "previous_host", stream.Host)
		}
		stream.SessionID = session
		stream.Status = domain.StreamLive
		stream.Host = profile.ID
		stream.StartedAt = now
		stream.UpdatedAt = now
		return nil
	}); err != nil {
		s.logger.Warnw("failed to save stream record", "session_id", session, "error", err)
	}

	if err := s.store.Set(ctx, liveKeyPointer, []byte(key), 0); err != nil {
		s.logger.Warnw("failed to set live key", "error", err)
	}
	if err := s.store.Set(ctx, statusKey(key), []byte(domain.StreamLive), 0); err != nil {
		s.logger.Warnw("failed to set stream status", "error", err)
	}
	if err := writeMetrics(ctx, s.store, key, domain.StreamMetrics{}); err != nil {
		s.logger.Warnw("failed to reset stream metrics", "error", err)
	}

	host, err := s.profiles.Update(ctx, profile.ID, func(p *domain.Profile) error {
		p.Flags = p.Flags.AsHost()
		return nil
	})
	if err != nil {
		s.logger.Warnw("failed to flag profile as host", "user_id", profile.ID, "error", err)
		host = profile
	}

	s.out.publish(ctx, domain.PlatformChannel, domain.EventStartBroadcast, domain.BroadcastPayload{Profile: host.Public()})

	s.metrics.SetLive(true)
	s.metrics.SetViewers(0)
	s.metrics.RecordLifecycle("publish", "accepted")
	s.logger.Infow("stream started", "session_id", session, "host", profile.ID)
	return nil
}

func (s *lifecycleService) PublishEnd(ctx context.Context, key domain.StreamKey) error {
	ctx, span := tracing.StartSpan(ctx, "lifecycle.publish_end")
	defer span.End()

	if key == "" {
		return domain.ErrCredentialRejected
	}

	unlock := s.lock(ctx, key)
	defer unlock()

	current, err := liveKey(ctx, s.store)
	if err != nil && !errors.Is(err, domain.ErrNotLive) {
		s.logger.Warnw("failed to read live key on publish end", "error", err)
	}
	ownsLive := err == nil && current == key

	if err := s.store.Set(ctx, statusKey(key), []byte(domain.StreamOffline), 0); err != nil {
		s.logger.Warnw("failed to set stream status", "error", err)
	}

	var host domain.UserID
	profile, err := s.profiles.GetByStreamKey(ctx, key)
	switch {
	case err == nil:
		host = profile.ID
		if _, err := s.profiles.Update(ctx, profile.ID, func(p *domain.Profile) error {
			p.Flags = p.Flags.AsViewer()
			return nil
		}); err != nil {
			s.logger.Warnw("failed to revert host flags", "user_id", profile.ID, "error", err)
		}
	case errors.Is(err, domain.ErrProfileNotFound):
		s.logger.Infow("publish ended for a key that no longer resolves")
	default:
		s.logger.Warnw("failed to resolve stream key on publish end", "error", err)
	}

	// A key that neither resolves to a host nor is the live one has no say
	// over the broadcast record.
	if host == "" && !ownsLive {
		s.metrics.RecordLifecycle("publish_done", "ignored")
		return nil
	}

	if ownsLive {
		if err := s.store.Delete(ctx, liveKeyPointer); err != nil {
			s.logger.Warnw("failed to clear live key", "error", err)
		}
	}

	stopped := false
	if _, err := s.streams.Update(ctx, func(stream *domain.Stream) error {
		stopped = false
		owner := stream.Host == host || (host == "" && ownsLive)
		if !stream.IsLive() || !owner {
			return nil
		}
		stream.Status = domain.StreamOffline
		stream.UpdatedAt = s.now()
		stopped = true
		return nil
	}); err != nil {
		s.logger.Warnw("failed to save stream record", "error", err)
	}

	if !ownsLive && !stopped {
		s.metrics.RecordLifecycle("publish_done", "ignored")
		s.logger.Infow("publish ended for a stream that is not live", "host", host)
		return nil
	}

	s.out.publish(ctx, domain.PlatformChannel, domain.EventEndBroadcast, struct{}{})

	s.metrics.SetLive(false)
	s.metrics.RecordLifecycle("publish_done", "accepted")
	s.logger.Infow("stream stopped", "host", host)
	return nil
}

func (s *lifecycleService) ViewerJoined(ctx context.Context, key domain.StreamKey) {
	s.adjustViewers(ctx, key, 1, "play")
}

func (s *lifecycleService) ViewerLeft(ctx context.Context, key domain.StreamKey) {
	s.adjustViewers(ctx, key, -1, "play_done")
}

// adjustViewers only counts viewers of the live broadcast, so play callbacks
// for other keys never create metrics entries.
func (s *lifecycleService) adjustViewers(ctx context.Context, key domain.StreamKey, delta int, signal string) {
	live, err := s.isLive(ctx, key)
	if err != nil {
		s.metrics.RecordLifecycle(signal, "error")
		s.logger.Warnw("failed to read live key", "signal", signal, "error", err)
		return
	}
	if !live {
		s.metrics.RecordLifecycle(signal, "ignored")
		return
	}

	m, err := readMetrics(ctx, s.store, key)
	if err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
		s.metrics.RecordLifecycle(signal, "error")
		s.logger.Warnw("failed to read stream metrics", "signal", signal, "error", err)
		return
	}

	m = m.AddViewers(delta)
	if err := writeMetrics(ctx, s.store, key, m); err != nil {
		s.metrics.RecordLifecycle(signal, "error")
		s.logger.Warnw("failed to write stream metrics", "signal", signal, "error", err)
		return
	}

	s.metrics.SetViewers(m.Viewers)
	s.metrics.RecordLifecycle(signal, "accepted")
}

// MediaSample is best effort. It runs behind a circuit breaker with a short
// timeout so an unavailable store never stalls the media path.
func (s *lifecycleService) MediaSample(ctx context.Context, key domain.StreamKey, bitrate int, fps float64) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.SampleTimeout)
	defer cancel()

	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		live, err := s.isLive(ctx, key)
		if err != nil || !live {
			return err
		}
		m, err := readMetrics(ctx, s.store, key)
		if err != nil && !errors.Is(err, domain.ErrKeyNotFound) {
			return err
		}
		m.Bitrate = bitrate
		m.FPS = fps
		return writeMetrics(ctx, s.store, key, m)
	})
	if err != nil {
		s.metrics.RecordDroppedSample()
		s.logger.Debugw("dropped media sample", "error", err)
	}
}

func (s *lifecycleService) isLive(ctx context.Context, key domain.StreamKey) (bool, error) {
	current, err := liveKey(ctx, s.store)
	if errors.Is(err, domain.ErrNotLive) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return current == key, nil
}

// lock serializes publish transitions for one key. Failing to lock is logged
// and the transition proceeds.
func (s *lifecycleService) lock(ctx context.Context, key domain.StreamKey) func() {
	if s.locker == nil {
		return func() {}
	}
	unlock, err := s.locker.Acquire(ctx, "lifecycle:"+string(key), s.opts.LockTTL)
	if err != nil {
		s.logger.Warnw("failed to acquire lifecycle lock", "error", err)
		return func() {}
	}
	return func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Debugw("failed to release lifecycle lock", "error", err)
		}
	}
}
