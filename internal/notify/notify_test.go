package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"msgrelay/backend/internal/domain"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, to, subject, body string) error {
	return m.Called(ctx, to, subject, body).Error(0)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishReply(ctx context.Context, message *domain.Message) (int64, error) {
	args := m.Called(ctx, message)
	return args.Get(0).(int64), args.Error(1)
}

func reply() *domain.Message {
	return &domain.Message{
		MessageID: "m1",
		ClientID:  "42",
		Message:   "Thanks!",
		Email:     "c@x.com",
		Subject:   "Re:",
		Direction: domain.DirectionInbound,
		Timestamp: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestRenderAdminBody(t *testing.T) {
	body, err := RenderAdminBody(reply())
	require.NoError(t, err)
	assert.Contains(t, body, "Client ID: 42")
	assert.Contains(t, body, "From:      c@x.com")
	assert.Contains(t, body, "2024-05-01T08:00:00Z")
	assert.Contains(t, body, "Thanks!")
}

func TestMailNotifier(t *testing.T) {
	ctx := context.Background()

	t.Run("发送给管理员", func(t *testing.T) {
		sender := new(mockSender)
		sender.On("Send", ctx, "admin@relay.local", "New reply from client 42", mock.Anything).Return(nil).Once()

		NewMailNotifier(sender, "admin@relay.local", nil).NotifyReply(ctx, reply())
		sender.AssertExpectations(t)
	})

	t.Run("失败只记录日志", func(t *testing.T) {
		core, logs := observer.New(zap.ErrorLevel)
		sender := new(mockSender)
		sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("relay down"))

		NewMailNotifier(sender, "admin@relay.local", zap.New(core)).NotifyReply(ctx, reply())
		assert.Equal(t, 1, logs.FilterMessage("failed to notify admin by email").Len())
	})
}

func TestPublishNotifier(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.ErrorLevel)

	publisher := new(mockPublisher)
	publisher.On("PublishReply", ctx, mock.Anything).Return(int64(0), errors.New("redis down")).Once()
	publisher.On("PublishReply", ctx, mock.Anything).Return(int64(2), nil).Once()

	n := NewPublishNotifier(publisher, zap.New(core))
	n.NotifyReply(ctx, reply())
	n.NotifyReply(ctx, reply())

	publisher.AssertNumberOfCalls(t, "PublishReply", 2)
	assert.Equal(t, 1, logs.Len())
}

func TestMulti(t *testing.T) {
	ctx := context.Background()
	sender := new(mockSender)
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("fail"))
	publisher := new(mockPublisher)
	publisher.On("PublishReply", mock.Anything, mock.Anything).Return(int64(1), nil)

	multi := Multi{
		NewMailNotifier(sender, "admin@relay.local", nil),
		nil,
		NewPublishNotifier(publisher, nil),
		NewLogNotifier(nil),
	}
	multi.NotifyReply(ctx, reply())

	// 前一个失败不影响后续通知
	sender.AssertNumberOfCalls(t, "Send", 1)
	publisher.AssertNumberOfCalls(t, "PublishReply", 1)
}
