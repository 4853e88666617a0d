package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"castline/internal/core/domain"
	"castline/internal/core/ports"
	"castline/pkg/tracing"

	"go.uber.org/zap"
)

type ModerationOptions struct {
	Placeholder string
	Bot         domain.Identity
}

func DefaultModerationOptions() ModerationOptions {
	return ModerationOptions{
		Placeholder: domain.DeletedPlaceholder,
		Bot:         DefaultChatOptions().Bot,
	}
}

type moderationService struct {
	profiles ports.ProfileRepository
	messages ports.MessageRepository
	streams  ports.StreamRepository
	out      broadcaster
	metrics  ports.MetricsCollector
	logger   *zap.SugaredLogger
	opts     ModerationOptions
	now      func() time.Time
}

func NewModerationService(
	profiles ports.ProfileRepository,
	messages ports.MessageRepository,
	streams ports.StreamRepository,
	bus ports.Bus,
	metrics ports.MetricsCollector,
	logger *zap.SugaredLogger,
	opts ModerationOptions,
) ports.ModerationService {
	metrics = metricsOrNoop(metrics)
	logger = loggerOrNop(logger)
	if opts.Placeholder == "" {
		opts.Placeholder = domain.DeletedPlaceholder
	}
	return &moderationService{
		profiles: profiles,
		messages: messages,
		streams:  streams,
		out:      broadcaster{bus: bus, metrics: metrics, logger: logger},
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

func (s *moderationService) Delete(ctx context.Context, actor domain.Identity, id domain.MessageID) (err error) {
	ctx, span := tracing.StartSpan(ctx, "moderation.delete")
	defer span.End()
	defer s.record("delete", &err)

	profile, err := loadActor(ctx, s.profiles, actor)
	if err != nil {
		return err
	}
	if err := authorize(profile, domain.PermDeleteMessage); err != nil {
		return err
	}

	if err := checkDeadline(ctx); err != nil {
		return err
	}

	if _, err := s.messages.PatchContent(ctx, id, s.opts.Placeholder); err != nil {
		return storeErr("patch message content", err)
	}

	s.out.publish(ctx, domain.ChatChannel, domain.EventDeleteMessage, domain.IDPayload{ID: string(id)})
	s.logger.Infow("message deleted", "message_id", id, "moderator", actor.ID)
	return nil
}

// Mute revokes the chat capabilities platform-wide. The sanction records the
// session that was live when it was issued.
func (s *moderationService) Mute(ctx context.Context, actor domain.Identity, target domain.UserID, reason string) (err error) {
	ctx, span := tracing.StartSpan(ctx, "moderation.mute")
	defer span.End()
	defer s.record("mute", &err)

	if target == "" {
		return fmt.Errorf("%w: target is required", domain.ErrValidation)
	}

	moderator, err := loadActor(ctx, s.profiles, actor)
	if err != nil {
		return err
	}
	if err := authorize(moderator, domain.PermMuteUser); err != nil {
		return err
	}

	session := s.currentSession(ctx)

	if err := checkDeadline(ctx); err != nil {
		return err
	}

	_, err = s.profiles.Update(ctx, target, func(p *domain.Profile) error {
		if err := checkSanctionable(moderator, p); err != nil {
			return err
		}
		p.Permissions = domain.Revoke(p.Permissions, domain.MutedPermissions)
		p.Sanction.Mute = &domain.MuteSanction{
			SessionID: session,
			Issuer:    actor.ID,
			Reason:    reason,
			IssuedAt:  s.now(),
		}
		return nil
	})
	if err != nil {
		return storeErr("mute user", err)
	}

	s.out.publish(ctx, domain.ChatChannel, domain.EventUserMuted, domain.IDPayload{ID: string(target)})
	s.logger.Infow("user muted", "target", target, "moderator", actor.ID, "session_id", session)
	return nil
}

// Ban zeroes the target's bitfield. The announcement is a separate write that
// follows the profile update; a failure there is logged, not returned.
func (s *moderationService) Ban(ctx context.Context, actor domain.Identity, target domain.UserID, reason string) (err error) {
	ctx, span := tracing.StartSpan(ctx, "moderation.ban")
	defer span.End()
	defer s.record("ban", &err)

	if target == "" {
		return fmt.Errorf("%w: target is required", domain.ErrValidation)
	}

	moderator, err := loadActor(ctx, s.profiles, actor)
	if err != nil {
		return err
	}
	if err := authorize(moderator, domain.PermBanUser); err != nil {
		return err
	}

	if err := checkDeadline(ctx); err != nil {
		return err
	}

	_, err = s.profiles.Update(ctx, target, func(p *domain.Profile) error {
		if err := checkSanctionable(moderator, p); err != nil {
			return err
		}
		p.Permissions = 0
		p.Sanction.Ban = &domain.BanSanction{
			Issuer:   actor.Name,
			IssuerID: actor.ID,
			Reason:   reason,
			IssuedAt: s.now(),
		}
		return nil
	})
	if err != nil {
		return storeErr("ban user", err)
	}

	s.out.publish(ctx, domain.ChatChannel, domain.EventUserBanned, domain.IDPayload{ID: string(target)})
	s.logger.Infow("user banned", "target", target, "moderator", actor.ID)

	s.announceBan(ctx, actor, target, reason)
	return nil
}

func (s *moderationService) announceBan(ctx context.Context, actor domain.Identity, target domain.UserID, reason string) {
	session := s.currentSession(ctx)
	if session == "" {
		return
	}

	content := fmt.Sprintf("@%s banned %s", actor.Name, target)
	if reason != "" {
		content += " for: " + reason
	}
	msg := &domain.Message{
		SessionID: session,
		Author:    domain.AuthorOf(s.opts.Bot),
		Timestamp: s.now().UnixMilli(),
		Body:      domain.SystemBody{Content: content},
	}

	id, err := s.messages.Append(context.WithoutCancel(ctx), msg)
	if err != nil {
		s.logger.Warnw("failed to append ban announcement", "target", target, "error", err)
		return
	}
	msg.ID = id
	s.out.publish(ctx, domain.ChatChannel, domain.EventNewMessage, msg)
}

// PatchPermissions ORs grant into the target's bitfield. The event carries
// only the granted bits.
func (s *moderationService) PatchPermissions(ctx context.Context, actor domain.Identity, target domain.UserID, grant domain.Permission) (_ *domain.Profile, err error) {
	ctx, span := tracing.StartSpan(ctx, "moderation.patch_permissions")
	defer span.End()
	defer s.record("patch_permissions", &err)

	if target == "" {
		return nil, fmt.Errorf("%w: target is required", domain.ErrValidation)
	}

	admin, err := loadActor(ctx, s.profiles, actor)
	if err != nil {
		return nil, err
	}
	if err := authorize(admin, domain.PermAdministrator); err != nil {
		return nil, err
	}

	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}

	updated, err := s.profiles.Update(ctx, target, func(p *domain.Profile) error {
		if p.Authority() > admin.Authority() {
			return domain.ErrHigherAuthority
		}
		p.Permissions = domain.Grant(p.Permissions, grant)
		return nil
	})
	if err != nil {
		return nil, storeErr("patch permissions", err)
	}

	s.out.publish(ctx, domain.ChatChannel, domain.EventPermissionChanged, domain.PermissionChangedPayload{
		ID:          target,
		Permissions: grant,
	})
	s.logger.Infow("permissions granted", "target", target, "granted", grant.Names(), "admin", actor.ID)
	return updated.Public(), nil
}

// BanStatus reports whether the caller is banned and, if so, tells their
// other connections through banned-user.
func (s *moderationService) BanStatus(ctx context.Context, actor domain.Identity) (*domain.BanSanction, bool, error) {
	if actor.ID == "" {
		return nil, false, domain.ErrUnauthenticated
	}

	p, err := s.profiles.Get(ctx, actor.ID)
	if err != nil {
		return nil, false, storeErr("load profile", err)
	}
	if !p.IsBanned() {
		return nil, false, nil
	}

	s.out.publish(ctx, domain.ChatChannel, domain.EventBannedUser, domain.IDPayload{ID: string(actor.ID)})

	ban := p.Sanction.Ban
	if ban == nil {
		ban = &domain.BanSanction{}
	}
	return ban, true, nil
}

func (s *moderationService) currentSession(ctx context.Context) domain.SessionID {
	stream, err := s.streams.Current(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrStreamNotFound) {
			s.logger.Warnw("failed to load stream", "error", err)
		}
		return ""
	}
	return stream.SessionID
}

func (s *moderationService) record(action string, err *error) {
	outcome := "success"
	switch {
	case *err == nil:
	case errors.Is(*err, domain.ErrForbidden), errors.Is(*err, domain.ErrUnauthenticated):
		outcome = "forbidden"
	case errors.Is(*err, domain.ErrNotFound):
		outcome = "not_found"
	case errors.Is(*err, domain.ErrValidation):
		outcome = "invalid"
	default:
		outcome = "error"
	}
	s.metrics.RecordModeration(action, outcome)
}
