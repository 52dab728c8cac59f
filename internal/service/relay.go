package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"msgrelay/backend/internal/domain"
	"msgrelay/backend/internal/marker"
	"msgrelay/backend/internal/storage"
)

// Mailer 发送通知邮件
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// AdminNotifier 回复入库后通知管理员，自行处理并记录失败
type AdminNotifier interface {
	NotifyReply(ctx context.Context, message *domain.Message)
}

// Recorder 业务指标记录
type Recorder interface {
	MessageStored(direction domain.Direction)
	NotificationSent(err error)
	CorrelationFailed()
}

type nopRecorder struct{}

func (nopRecorder) MessageStored(domain.Direction) {}
func (nopRecorder) NotificationSent(error)         {}
func (nopRecorder) CorrelationFailed()             {}

// DefaultSubject 通知邮件默认主题
const DefaultSubject = "You have a new message"

// RelayService 负责消息写入、通知邮件发送与回复关联。
type RelayService struct {
	repo     storage.MessageRepository
	mailer   Mailer
	notifier AdminNotifier
	log      *zap.Logger
	metrics  Recorder
	subject  string
	now      func() time.Time
	newID    func() string
}

// Option 配置 RelayService
type Option func(*RelayService)

// WithClock 替换时间来源
func WithClock(now func() time.Time) Option {
	return func(s *RelayService) { s.now = now }
}

// WithIDGenerator 替换消息 ID 生成器
func WithIDGenerator(newID func() string) Option {
	return func(s *RelayService) { s.newID = newID }
}

// WithSubject 设置通知邮件主题
func WithSubject(subject string) Option {
	return func(s *RelayService) {
		if strings.TrimSpace(subject) != "" {
			s.subject = subject
		}
	}
}

// WithRecorder 设置指标记录器
func WithRecorder(r Recorder) Option {
	return func(s *RelayService) {
		if r != nil {
			s.metrics = r
		}
	}
}

// NewRelayService 创建消息中继服务。
func NewRelayService(repo storage.MessageRepository, mailer Mailer, notifier AdminNotifier, log *zap.Logger, opts ...Option) *RelayService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &RelayService{
		repo:     repo,
		mailer:   mailer,
		notifier: notifier,
		log:      log,
		metrics:  nopRecorder{},
		subject:  DefaultSubject,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendMessageInput 定义客户提交消息所需的输入。
type SendMessageInput struct {
	ClientID string
	Message  string
	Email    string
}

// SendMessage 保存客户消息并向其邮箱发送带 ClientId 标记的通知邮件。
// 邮件发送失败时消息已经入库，返回的消息与 DownstreamError 同时非空。
func (s *RelayService) SendMessage(ctx context.Context, input SendMessageInput) (*domain.Message, error) {
	clientID := strings.TrimSpace(input.ClientID)
	email := strings.TrimSpace(input.Email)

	var fields []string
	if clientID == "" {
		fields = append(fields, "clientId is required")
	} else if !marker.Valid(clientID) {
		fields = append(fields, "clientId must contain only digits")
	}
	if strings.TrimSpace(input.Message) == "" {
		fields = append(fields, "message is required")
	} else if err := domain.ValidateMessageBody(input.Message); err != nil {
		fields = append(fields, "message: "+err.Error())
	}
	if email == "" {
		fields = append(fields, "email is required")
	} else if addr, err := domain.NormalizeAddress(email); err != nil {
		fields = append(fields, "email: "+err.Error())
	} else {
		email = addr
	}
	if len(fields) > 0 {
		return nil, NewValidationError("invalid message", fields...)
	}

	body, err := marker.Append(input.Message, clientID)
	if err != nil {
		return nil, NewValidationError("invalid message", "clientId: "+err.Error())
	}

	message := &domain.Message{
		MessageID: s.newID(),
		ClientID:  clientID,
		Message:   input.Message,
		Email:     email,
		Direction: domain.DirectionOutbound,
		Timestamp: s.now().UTC(),
	}

	if err := s.repo.SaveMessage(ctx, message); err != nil {
		s.log.Error("failed to save message",
			zap.String("clientId", clientID),
			zap.Error(err),
		)
		return nil, &DownstreamError{Op: "save message", Err: err}
	}
	s.metrics.MessageStored(message.Direction)

	s.log.Info("message stored",
		zap.String("messageId", message.MessageID),
		zap.String("clientId", clientID),
		zap.String("direction", string(message.Direction)),
	)

	err = s.mailer.Send(ctx, email, s.subject, body)
	s.metrics.NotificationSent(err)
	if err != nil {
		s.log.Error("failed to send notification",
			zap.String("messageId", message.MessageID),
			zap.String("to", email),
			zap.Error(err),
		)
		return message, &DownstreamError{Op: "send notification", Err: err}
	}

	return message, nil
}

// InboundReplyInput 定义回复邮件解析后的字段。
type InboundReplyInput struct {
	Sender    string
	Recipient string
	Subject   string
	Text      string
}

// ReceiveReply 从回复正文中的第一个标记恢复 ClientId 并保存回复。
// 找不到标记时不写入、不通知。
func (s *RelayService) ReceiveReply(ctx context.Context, input InboundReplyInput) (*domain.Message, error) {
	var fields []string

	sender := strings.TrimSpace(input.Sender)
	if sender == "" {
		fields = append(fields, "sender is required")
	} else if addr, err := domain.NormalizeAddress(sender); err != nil {
		fields = append(fields, "sender: "+err.Error())
	} else {
		sender = addr
	}
	if err := domain.ValidateSubject(input.Subject); err != nil {
		fields = append(fields, "subject: "+err.Error())
	}
	if err := domain.ValidateMessageBody(input.Text); err != nil {
		fields = append(fields, "text: "+err.Error())
	}
	if len(fields) > 0 {
		return nil, NewValidationError("invalid inbound reply", fields...)
	}

	clientID, ok := marker.Extract(input.Text)
	if !ok {
		s.metrics.CorrelationFailed()
		s.log.Warn("inbound reply without correlation marker",
			zap.String("sender", sender),
			zap.String("recipient", input.Recipient),
		)
		return nil, &ValidationError{
			Reason: "invalid inbound reply",
			Fields: []string{"text: " + ErrMissingCorrelation.Error()},
			Err:    ErrMissingCorrelation,
		}
	}

	message := &domain.Message{
		MessageID: s.newID(),
		ClientID:  clientID,
		Message:   input.Text,
		Email:     sender,
		Subject:   input.Subject,
		Direction: domain.DirectionInbound,
		Timestamp: s.now().UTC(),
	}

	if err := s.repo.SaveMessage(ctx, message); err != nil {
		s.log.Error("failed to save reply",
			zap.String("clientId", clientID),
			zap.Error(err),
		)
		return nil, &DownstreamError{Op: "save reply", Err: err}
	}
	s.metrics.MessageStored(message.Direction)

	s.log.Info("reply stored",
		zap.String("messageId", message.MessageID),
		zap.String("clientId", clientID),
		zap.String("direction", string(message.Direction)),
	)

	if s.notifier != nil {
		s.notifier.NotifyReply(ctx, message)
	}
	return message, nil
}

// ListByEmail 返回指定邮箱的全部消息，顺序由存储决定。
func (s *RelayService) ListByEmail(ctx context.Context, email string) ([]domain.Message, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, NewValidationError("invalid request", "email path parameter is required")
	}

	messages, err := s.repo.ListMessagesByEmail(ctx, email)
	if err != nil {
		s.log.Error("failed to list messages", zap.String("email", email), zap.Error(err))
		return nil, &DownstreamError{Op: "list messages", Err: err}
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return messages, nil
}

// IsMissingCorrelation 判断错误是否因缺少关联标记
func IsMissingCorrelation(err error) bool {
	return errors.Is(err, ErrMissingCorrelation)
}
