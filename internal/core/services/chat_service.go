package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"castline/internal/core/domain"
	"castline/internal/core/ports"
	"castline/pkg/tracing"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

var linkPattern = regexp.MustCompile(`(?i)(https?://|www\.)\S+`)

type ChatOptions struct {
	MaxContentLength int
	JoinMarkerTTL    time.Duration
	Bot              domain.Identity
}

func DefaultChatOptions() ChatOptions {
	return ChatOptions{
		MaxContentLength: 500,
		JoinMarkerTTL:    8 * time.Hour,
		Bot:              domain.Identity{ID: "castline-bot", Name: "Castline"},
	}
}

type chatService struct {
	profiles ports.ProfileRepository
	messages ports.MessageRepository
	streams  ports.StreamRepository
	store    ports.SessionStore
	settings ports.SettingsService
	commands *CommandRegistry
	out      broadcaster
	metrics  ports.MetricsCollector
	logger   *zap.SugaredLogger
	opts     ChatOptions
	now      func() time.Time
}

func NewChatService(
	profiles ports.ProfileRepository,
	messages ports.MessageRepository,
	streams ports.StreamRepository,
	store ports.SessionStore,
	settings ports.SettingsService,
	commands *CommandRegistry,
	bus ports.Bus,
	metrics ports.MetricsCollector,
	logger *zap.SugaredLogger,
	opts ChatOptions,
) ports.ChatService {
	metrics = metricsOrNoop(metrics)
	logger = loggerOrNop(logger)
	if commands == nil {
		commands = NewCommandRegistry()
	}
	return &chatService{
		profiles: profiles,
		messages: messages,
		streams:  streams,
		store:    store,
		settings: settings,
		commands: commands,
		out:      broadcaster{bus: bus, metrics: metrics, logger: logger},
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

func (s *chatService) Send(ctx context.Context, actor domain.Identity, content string, typ domain.MessageType) (*domain.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "chat.send")
	defer span.End()

	var required domain.Permission
	switch typ {
	case domain.MessageUser:
		required = domain.PermSendMessage
	case domain.MessageGIF:
		required = domain.PermSendGIF
	default:
		return nil, domain.ErrInvalidMessageType
	}

	content, err := s.checkContent(content)
	if err != nil {
		return nil, err
	}

	profile, err := loadActor(ctx, s.profiles, actor)
	if err != nil {
		return nil, err
	}
	if typ == domain.MessageUser && linkPattern.MatchString(content) {
		required |= domain.PermSendLink
	}
	if err := authorize(profile, required); err != nil {
		return nil, err
	}

	if err := s.moderate(ctx, content); err != nil {
		return nil, err
	}

	session, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	var body domain.Body = domain.UserBody{Content: content}
	if typ == domain.MessageGIF {
		body = domain.GIFBody{URL: content}
	}
	msg := &domain.Message{
		SessionID: session,
		Author:    domain.AuthorOf(actor),
		Body:      body,
	}
	if err := s.persist(ctx, msg); err != nil {
		return nil, err
	}

	s.out.publish(ctx, domain.ChatChannel, domain.EventNewMessage, msg)
	s.metrics.RecordChatMessage(typ)
	return msg, nil
}

func (s *chatService) Reply(ctx context.Context, actor domain.Identity, content string, parentID domain.MessageID) (*domain.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "chat.reply")
	defer span.End()

	content, err := s.checkContent(content)
	if err != nil {
		return nil, err
	}

	profile, err := loadActor(ctx, s.profiles, actor)
	if err != nil {
		return nil, err
	}
	required := domain.PermReplyMessage
	if linkPattern.MatchString(content) {
		required |= domain.PermSendLink
	}
	if err := authorize(profile, required); err != nil {
		return nil, err
	}

	if err := s.moderate(ctx, content); err != nil {
		return nil, err
	}

	parent, err := s.messages.Get(ctx, parentID)
	if err != nil {
		return nil, storeErr("load replied message", err)
	}

	session, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		SessionID: session,
		Author:    domain.AuthorOf(actor),
		Body:      domain.ReplyBody{Content: content, Parent: parent.Snapshot()},
	}
	if err := s.persist(ctx, msg); err != nil {
		return nil, err
	}

	s.out.publish(ctx, domain.ChatChannel, domain.EventReply, msg)
	s.metrics.RecordChatMessage(domain.MessageReply)
	return msg, nil
}

func (s *chatService) React(ctx context.Context, actor domain.Identity, id domain.MessageID, emoji string) ([]domain.Reaction, error) {
	ctx, span := tracing.StartSpan(ctx, "chat.react")
	defer span.End()

	emoji = strings.TrimSpace(emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > 32 || strings.ContainsAny(emoji, " \t\n") {
		return nil, domain.ErrInvalidEmoji
	}

	profile, err := loadActor(ctx, s.profiles, actor)
	if err != nil {
		return nil, err
	}
	if err := authorize(profile, domain.PermMessageReaction); err != nil {
		return nil, err
	}

	if err := checkDeadline(ctx); err != nil {
		return nil, err
	}

	reactions, err := s.messages.ModifyReactions(ctx, id, func(current []domain.Reaction) ([]domain.Reaction, error) {
		return domain.ToggleReaction(current, emoji, actor.ID), nil
	})
	if err != nil {
		return nil, storeErr("toggle reaction", err)
	}

	s.out.publish(ctx, domain.ChatChannel, domain.EventMessageReaction, domain.ReactionPayload{ID: id, Reactions: reactions})
	return reactions, nil
}

// Command runs a slash command. Ephemeral replies are returned to the caller
// only; everything else is appended to the timeline as a bot message.
func (s *chatService) Command(ctx context.Context, actor domain.Identity, input string) (*domain.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "chat.command")
	defer span.End()

	profile, err := loadActor(ctx, s.profiles, actor)
	if err != nil {
		return nil, err
	}
	if err := authorize(profile, domain.PermUseSlashCommand); err != nil {
		return nil, err
	}

	cmd, reply, err := s.commands.Execute(ctx, actor, profile.Permissions, input)
	if err != nil {
		if cmd != nil {
			s.logger.Infow("command failed", "command", cmd.Name, "user_id", actor.ID, "error", err)
		}
		return nil, err
	}

	session, err := s.session(ctx)
	if err != nil && !reply.Ephemeral {
		return nil, err
	}

	msg := &domain.Message{
		SessionID: session,
		Author:    domain.AuthorOf(s.opts.Bot),
		Body: domain.CommandBody{
			Command: cmd.Name,
			Content: reply.Content,
			Embeds:  reply.Embeds,
			Invoker: domain.AuthorOf(actor),
		},
	}
	if reply.Ephemeral {
		msg.ID = domain.MessageID(ulid.Make().String())
		msg.Timestamp = s.now().UnixMilli()
		return msg, nil
	}

	if err := s.persist(ctx, msg); err != nil {
		return nil, err
	}
	s.out.publish(ctx, domain.ChatChannel, domain.EventNewMessage, msg)
	s.metrics.RecordChatMessage(domain.MessageCommand)
	return msg, nil
}

func (s *chatService) Commands(ctx context.Context, actor domain.Identity) ([]*domain.SlashCommand, error) {
	profile, err := loadActor(ctx, s.profiles, actor)
	if err != nil {
		return nil, err
	}
	if err := authorize(profile, domain.PermUseSlashCommand); err != nil {
		return nil, err
	}

	var out []*domain.SlashCommand
	for _, cmd := range s.commands.List() {
		if profile.Can(cmd.Permissions) {
			out = append(out, cmd)
		}
	}
	return out, nil
}

// AnnounceJoin posts a one-off system line when a viewer first joins the
// current broadcast. The marker expires so a later broadcast announces again.
func (s *chatService) AnnounceJoin(ctx context.Context, actor domain.Identity) error {
	if actor.ID == "" {
		return domain.ErrUnauthenticated
	}

	key, err := liveKey(ctx, s.store)
	if err != nil {
		return err
	}

	session, err := s.session(ctx)
	if err != nil {
		return err
	}

	if err := checkDeadline(ctx); err != nil {
		return err
	}

	set, err := s.store.SetNX(ctx, joinMarkerKey(key, actor.ID), []byte("1"), s.opts.JoinMarkerTTL)
	if err != nil {
		return domain.Unavailable("set join marker", err)
	}
	if !set {
		return domain.ErrAlreadyJoined
	}

	msg := &domain.Message{
		ID:        domain.MessageID(ulid.Make().String()),
		SessionID: session,
		Author:    domain.AuthorOf(s.opts.Bot),
		Timestamp: s.now().UnixMilli(),
		Body:      domain.SystemBody{Content: fmt.Sprintf("%s joined the stream", actor.Name)},
	}
	s.out.publish(ctx, domain.ChatChannel, domain.EventNewMessage, msg)
	return nil
}

func (s *chatService) SystemMessage(ctx context.Context, actor domain.Identity, content string) (*domain.Message, error) {
	content, err := s.checkContent(content)
	if err != nil {
		return nil, err
	}

	profile, err := loadActor(ctx, s.profiles, actor)
	if err != nil {
		return nil, err
	}
	if err := authorize(profile, domain.PermBroadcast); err != nil {
		return nil, err
	}

	session, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		SessionID: session,
		Author:    domain.AuthorOf(s.opts.Bot),
		Body:      domain.SystemBody{Content: content},
	}
	if err := s.persist(ctx, msg); err != nil {
		return nil, err
	}

	s.out.publish(ctx, domain.ChatChannel, domain.EventNewMessage, msg)
	s.metrics.RecordChatMessage(domain.MessageSystem)
	return msg, nil
}

func (s *chatService) History(ctx context.Context, actor domain.Identity) ([]*domain.Message, error) {
	profile, err := loadActor(ctx, s.profiles, actor)
	if err != nil {
		return nil, err
	}
	if err := authorize(profile, domain.PermReadMessageHistory); err != nil {
		return nil, err
	}

	session, err := s.session(ctx)
	if err != nil {
		return nil, err
	}

	msgs, err := s.messages.ListBySession(ctx, session)
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	return msgs, nil
}

func (s *chatService) checkContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", domain.ErrEmptyContent
	}
	if s.opts.MaxContentLength > 0 && utf8.RuneCountInString(content) > s.opts.MaxContentLength {
		return "", domain.ErrContentTooLong
	}
	return content, nil
}

// moderate applies the chat settings gate. It runs before any write.
func (s *chatService) moderate(ctx context.Context, content string) error {
	if s.settings == nil {
		return nil
	}
	filter, err := s.settings.Filter(ctx)
	if err != nil {
		return storeErr("load chat settings", err)
	}
	return filter.Check(content)
}

func (s *chatService) session(ctx context.Context) (domain.SessionID, error) {
	stream, err := s.streams.Current(ctx)
	if err != nil {
		return "", storeErr("load stream", err)
	}
	if stream.SessionID == "" {
		return "", domain.ErrStreamNotFound
	}
	return stream.SessionID, nil
}

func (s *chatService) persist(ctx context.Context, msg *domain.Message) error {
	if err := checkDeadline(ctx); err != nil {
		return err
	}

	msg.Timestamp = s.now().UnixMilli()
	id, err := s.messages.Append(ctx, msg)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			return err
		}
		s.logger.Warnw("failed to append message", "type", msg.Type(), "error", err)
		return storeErr("append message", err)
	}
	msg.ID = id
	return nil
}
