package services

import (
	"context"
	"errors"
	"fmt"

	"castline/internal/core/domain"
	"castline/internal/core/ports"

	"go.uber.org/zap"
)

// checkDeadline must run before the first mutation of an action so an
// expired request never leaves half its writes applied.
func checkDeadline(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeadlineExceeded, err)
	}
	return nil
}

// storeErr passes domain errors through and tags anything else as transient.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrUnavailable):
		return err
	default:
		return domain.Unavailable(op, err)
	}
}

// loadActor resolves the acting profile. An identity without a profile holds
// no capabilities.
func loadActor(ctx context.Context, profiles ports.ProfileRepository, actor domain.Identity) (*domain.Profile, error) {
	if actor.ID == "" {
		return nil, domain.ErrUnauthenticated
	}
	p, err := profiles.Get(ctx, actor.ID)
	if errors.Is(err, domain.ErrProfileNotFound) {
		return nil, domain.ErrInsufficientPermissions
	}
	if err != nil {
		return nil, storeErr("load actor profile", err)
	}
	return p, nil
}

func authorize(p *domain.Profile, required domain.Permission) error {
	if !p.Can(required) {
		return domain.ErrInsufficientPermissions
	}
	return nil
}

// checkSanctionable applies the protection rules shared by mute and ban.
func checkSanctionable(actor, target *domain.Profile) error {
	if target.IsAdministrator() {
		return domain.ErrProtectedTarget
	}
	if target.Authority() > actor.Authority() {
		return domain.ErrHigherAuthority
	}
	return nil
}

// broadcaster publishes after a successful store write. A failed publish is
// logged and counted but does not fail the action: the timeline stays the
// source of truth for reconnecting clients.
type broadcaster struct {
	bus     ports.Bus
	metrics ports.MetricsCollector
	logger  *zap.SugaredLogger
}

func (b broadcaster) publish(ctx context.Context, channel, event string, payload any) {
	err := b.bus.Publish(ctx, channel, event, payload)
	b.metrics.RecordBusPublish(event, err)
	if err != nil {
		b.logger.Warnw("failed to publish event",
			"channel", channel,
			"event", event,
			"error", err,
		)
	}
}

type noopMetrics struct{}

func (noopMetrics) RecordChatMessage(domain.MessageType) {}
func (noopMetrics) RecordModeration(string, string)      {}
func (noopMetrics) RecordLifecycle(string, string)       {}
func (noopMetrics) SetLive(bool)                         {}
func (noopMetrics) SetViewers(int)                       {}
func (noopMetrics) RecordBusPublish(string, error)       {}
func (noopMetrics) RecordDroppedSample()                 {}
func (noopMetrics) GatewayConnected()                    {}
func (noopMetrics) GatewayDisconnected()                 {}

func metricsOrNoop(m ports.MetricsCollector) ports.MetricsCollector {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

func loggerOrNop(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l == nil {
		return zap.NewNop().Sugar()
	}
	return l
}
