package ports

import (
	"context"

	"castline/internal/core/domain"
)

// LifecycleService consumes the ingest process callbacks. Only
// PublishAttempt can fail the caller: a rejected key must refuse the feed.
type LifecycleService interface {
	PublishAttempt(ctx context.Context, key domain.StreamKey) error
	PublishEnd(ctx context.Context, key domain.StreamKey) error
	ViewerJoined(ctx context.Context, key domain.StreamKey)
	ViewerLeft(ctx context.Context, key domain.StreamKey)
	MediaSample(ctx context.Context, key domain.StreamKey, bitrate int, fps float64)
}

type ChatService interface {
	Send(ctx context.Context, actor domain.Identity, content string, typ domain.MessageType) (*domain.Message, error)
	Reply(ctx context.Context, actor domain.Identity, content string, parent domain.MessageID) (*domain.Message, error)
	React(ctx context.Context, actor domain.Identity, id domain.MessageID, emoji string) ([]domain.Reaction, error)
	Command(ctx context.Context, actor domain.Identity, input string) (*domain.Message, error)
	Commands(ctx context.Context, actor domain.Identity) ([]*domain.SlashCommand, error)
	AnnounceJoin(ctx context.Context, actor domain.Identity) error
	SystemMessage(ctx context.Context, actor domain.Identity, content string) (*domain.Message, error)
	History(ctx context.Context, actor domain.Identity) ([]*domain.Message, error)
}

type ModerationService interface {
	Delete(ctx context.Context, actor domain.Identity, id domain.MessageID) error
	Mute(ctx context.Context, actor domain.Identity, target domain.UserID, reason string) error
	Ban(ctx context.Context, actor domain.Identity, target domain.UserID, reason string) error
	PatchPermissions(ctx context.Context, actor domain.Identity, target domain.UserID, grant domain.Permission) (*domain.Profile, error)
	BanStatus(ctx context.Context, actor domain.Identity) (*domain.BanSanction, bool, error)
}

type ProfileService interface {
	Ensure(ctx context.Context, id domain.Identity) (*domain.Profile, error)
	Get(ctx context.Context, id domain.UserID) (*domain.Profile, error)
	RegenerateStreamKey(ctx context.Context, actor domain.Identity) (domain.StreamKey, error)
}

type StreamService interface {
	Current(ctx context.Context) (*domain.Stream, error)
	Patch(ctx context.Context, actor domain.Identity, patch domain.StreamPatch) (*domain.Stream, error)
	Metrics(ctx context.Context) (*domain.StreamMetrics, error)
}

type SettingsService interface {
	Get(ctx context.Context, actor domain.Identity) (*domain.ChatSettings, error)
	Update(ctx context.Context, actor domain.Identity, s *domain.ChatSettings) (*domain.ChatSettings, error)
	IsEnabled(ctx context.Context) (bool, error)
	Filter(ctx context.Context) (*domain.Filter, error)
}

// MetricsCollector receives coordinator telemetry.
type MetricsCollector interface {
	RecordChatMessage(typ domain.MessageType)
	RecordModeration(action, outcome string)
	RecordLifecycle(signal, outcome string)
	SetLive(live bool)
	SetViewers(n int)
	RecordBusPublish(event string, err error)
	RecordDroppedSample()
	GatewayConnected()
	GatewayDisconnected()
}
