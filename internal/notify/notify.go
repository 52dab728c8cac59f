// Package notify 在回复入库后通知管理员。通知失败只记录日志，不影响已保存的回复。
package notify

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"go.uber.org/zap"

	"msgrelay/backend/internal/domain"
)

// Notifier 回复通知
type Notifier interface {
	NotifyReply(ctx context.Context, message *domain.Message)
}

// MailSender 邮件发送
type MailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// ReplyPublisher 回复事件发布
type ReplyPublisher interface {
	PublishReply(ctx context.Context, message *domain.Message) (int64, error)
}

var adminTemplate = template.Must(template.New("admin").Parse(`A client replied.

Client ID: {{.ClientID}}
From:      {{.Email}}
Subject:   {{.Subject}}
Received:  {{.Timestamp.Format "2006-01-02T15:04:05Z07:00"}}
Message ID: {{.MessageID}}

{{.Message}}
`))

// RenderAdminBody 生成管理员通知正文
func RenderAdminBody(message *domain.Message) (string, error) {
	var buf bytes.Buffer
	if err := adminTemplate.Execute(&buf, message); err != nil {
		return "", fmt.Errorf("render admin notification: %w", err)
	}
	return buf.String(), nil
}

// MailNotifier 向管理员地址发送通知邮件
type MailNotifier struct {
	sender  MailSender
	address string
	log     *zap.Logger
}

// NewMailNotifier 创建邮件通知
func NewMailNotifier(sender MailSender, address string, log *zap.Logger) *MailNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &MailNotifier{sender: sender, address: address, log: log}
}

// NotifyReply 实现 Notifier
func (n *MailNotifier) NotifyReply(ctx context.Context, message *domain.Message) {
	body, err := RenderAdminBody(message)
	if err != nil {
		n.log.Error("failed to render admin notification", zap.String("messageId", message.MessageID), zap.Error(err))
		return
	}

	subject := fmt.Sprintf("New reply from client %s", message.ClientID)
	if err := n.sender.Send(ctx, n.address, subject, body); err != nil {
		n.log.Error("failed to notify admin by email",
			zap.String("messageId", message.MessageID),
			zap.String("admin", n.address),
			zap.Error(err),
		)
	}
}

// PublishNotifier 通过 Redis 频道发布回复事件
type PublishNotifier struct {
	publisher ReplyPublisher
	log       *zap.Logger
}

// NewPublishNotifier 创建发布通知
func NewPublishNotifier(publisher ReplyPublisher, log *zap.Logger) *PublishNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &PublishNotifier{publisher: publisher, log: log}
}

// NotifyReply 实现 Notifier
func (n *PublishNotifier) NotifyReply(ctx context.Context, message *domain.Message) {
	receivers, err := n.publisher.PublishReply(ctx, message)
	if err != nil {
		n.log.Error("failed to publish reply event", zap.String("messageId", message.MessageID), zap.Error(err))
		return
	}
	n.log.Debug("reply event published",
		zap.String("messageId", message.MessageID),
		zap.Int64("receivers", receivers),
	)
}

// LogNotifier 只记录日志
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier 创建日志通知
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log}
}

// NotifyReply 实现 Notifier
func (n *LogNotifier) NotifyReply(_ context.Context, message *domain.Message) {
	n.log.Info("reply received",
		zap.String("messageId", message.MessageID),
		zap.String("clientId", message.ClientID),
		zap.String("email", message.Email),
	)
}

// Multi 依次调用多个通知
type Multi []Notifier

// NotifyReply 实现 Notifier
func (m Multi) NotifyReply(ctx context.Context, message *domain.Message) {
	for _, n := range m {
		if n != nil {
			n.NotifyReply(ctx, message)
		}
	}
}
