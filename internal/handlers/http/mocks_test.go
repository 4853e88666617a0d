package http

import (
	"context"

	"castline/internal/core/domain"

	"github.com/stretchr/testify/mock"
)

type mockChatService struct {
	mock.Mock
}

func (m *mockChatService) Send(ctx context.Context, actor domain.Identity, content string, typ domain.MessageType) (*domain.Message, error) {
	args := m.Called(ctx, actor, content, typ)
	msg, _ := args.Get(0).(*domain.Message)
	return msg, args.Error(1)
}

func (m *mockChatService) Reply(ctx context.Context, actor domain.Identity, content string, parent domain.MessageID) (*domain.Message, error) {
	args := m.Called(ctx, actor, content, parent)
	msg, _ := args.Get(0).(*domain.Message)
	return msg, args.Error(1)
}

func (m *mockChatService) React(ctx context.Context, actor domain.Identity, id domain.MessageID, emoji string) ([]domain.Reaction, error) {
	args := m.Called(ctx, actor, id, emoji)
	reactions, _ := args.Get(0).([]domain.Reaction)
	return reactions, args.Error(1)
}

func (m *mockChatService) Command(ctx context.Context, actor domain.Identity, input string) (*domain.Message, error) {
	args := m.Called(ctx, actor, input)
	msg, _ := args.Get(0).(*domain.Message)
	return msg, args.Error(1)
}

func (m *mockChatService) Commands(ctx context.Context, actor domain.Identity) ([]*domain.SlashCommand, error) {
	args := m.Called(ctx, actor)
	commands, _ := args.Get(0).([]*domain.SlashCommand)
	return commands, args.Error(1)
}

func (m *mockChatService) AnnounceJoin(ctx context.Context, actor domain.Identity) error {
	return m.Called(ctx, actor).Error(0)
}

func (m *mockChatService) SystemMessage(ctx context.Context, actor domain.Identity, content string) (*domain.Message, error) {
	args := m.Called(ctx, actor, content)
	msg, _ := args.Get(0).(*domain.Message)
	return msg, args.Error(1)
}

func (m *mockChatService) History(ctx context.Context, actor domain.Identity) ([]*domain.Message, error) {
	args := m.Called(ctx, actor)
	messages, _ := args.Get(0).([]*domain.Message)
	return messages, args.Error(1)
}

type mockModerationService struct {
	mock.Mock
}

func (m *mockModerationService) Delete(ctx context.Context, actor domain.Identity, id domain.MessageID) error {
	return m.Called(ctx, actor, id).Error(0)
}

func (m *mockModerationService) Mute(ctx context.Context, actor domain.Identity, target domain.UserID, reason string) error {
	return m.Called(ctx, actor, target, reason).Error(0)
}

func (m *mockModerationService) Ban(ctx context.Context, actor domain.Identity, target domain.UserID, reason string) error {
	return m.Called(ctx, actor, target, reason).Error(0)
}

func (m *mockModerationService) PatchPermissions(ctx context.Context, actor domain.Identity, target domain.UserID, grant domain.Permission) (*domain.Profile, error) {
	args := m.Called(ctx, actor, target, grant)
	p, _ := args.Get(0).(*domain.Profile)
	return p, args.Error(1)
}

func (m *mockModerationService) BanStatus(ctx context.Context, actor domain.Identity) (*domain.BanSanction, bool, error) {
	args := m.Called(ctx, actor)
	ban, _ := args.Get(0).(*domain.BanSanction)
	return ban, args.Bool(1), args.Error(2)
}

type mockLifecycleService struct {
	mock.Mock
}

func (m *mockLifecycleService) PublishAttempt(ctx context.Context, key domain.StreamKey) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockLifecycleService) PublishEnd(ctx context.Context, key domain.StreamKey) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockLifecycleService) ViewerJoined(ctx context.Context, key domain.StreamKey) {
	m.Called(ctx, key)
}

func (m *mockLifecycleService) ViewerLeft(ctx context.Context, key domain.StreamKey) {
	m.Called(ctx, key)
}

func (m *mockLifecycleService) MediaSample(ctx context.Context, key domain.StreamKey, bitrate int, fps float64) {
	m.Called(ctx, key, bitrate, fps)
}

type mockStreamService struct {
	mock.Mock
}

func (m *mockStreamService) Current(ctx context.Context) (*domain.Stream, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*domain.Stream)
	return s, args.Error(1)
}

func (m *mockStreamService) Patch(ctx context.Context, actor domain.Identity, patch domain.StreamPatch) (*domain.Stream, error) {
	args := m.Called(ctx, actor, patch)
	s, _ := args.Get(0).(*domain.Stream)
	return s, args.Error(1)
}

func (m *mockStreamService) Metrics(ctx context.Context) (*domain.StreamMetrics, error) {
	args := m.Called(ctx)
	metrics, _ := args.Get(0).(*domain.StreamMetrics)
	return metrics, args.Error(1)
}
