package smtp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"msgrelay/backend/internal/config"
	"msgrelay/backend/internal/domain"
	"msgrelay/backend/internal/service"
)

// ReplyReceiver 保存关联后的回复
type ReplyReceiver interface {
	ReceiveReply(ctx context.Context, input service.InboundReplyInput) (*domain.Message, error)
}

// 会话中返回给客户端的 SMTP 错误
var (
	errInvalidRecipient = &gosmtp.SMTPError{
		Code:         501,
		EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
		Message:      "invalid recipient address",
	}
	errRelayDenied = &gosmtp.SMTPError{
		Code:         550,
		EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
		Message:      "relay access denied - domain not managed by this server",
	}
	errNoRecipients = &gosmtp.SMTPError{
		Code:         554,
		EnhancedCode: gosmtp.EnhancedCode{5, 5, 1},
		Message:      "no valid recipients",
	}
	errMessageTooLarge = &gosmtp.SMTPError{
		Code:         552,
		EnhancedCode: gosmtp.EnhancedCode{5, 3, 4},
		Message:      "message exceeds fixed maximum message size",
	}
	errMissingMarker = &gosmtp.SMTPError{
		Code:         554,
		EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
		Message:      "reply is not correlated: no ClientId marker found",
	}
	errTemporary = &gosmtp.SMTPError{
		Code:         451,
		EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
		Message:      "temporary failure, try again later",
	}
)

// Backend 实现 go-smtp 的 Backend 接口。
//
// 只接收发往回复域名的邮件，不提供中继。每封邮件交给 ReplyReceiver
// 做关联与保存，没有关联标记的邮件在 DATA 阶段以 554 5.6.0 拒收。
type Backend struct {
	receiver ReplyReceiver
	domain   string
	maxBytes int64
	log      *zap.Logger
}

// NewBackend 创建 SMTP Backend。
func NewBackend(receiver ReplyReceiver, replyDomain string, maxBytes int64, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Backend{
		receiver: receiver,
		domain:   strings.ToLower(replyDomain),
		maxBytes: maxBytes,
		log:      log,
	}
}

// NewServer 按配置创建只收信的 SMTP 服务器
func NewServer(backend *Backend, cfg config.SMTPConfig) *gosmtp.Server {
	server := gosmtp.NewServer(backend)
	server.Addr = cfg.BindAddr
	server.Domain = cfg.Domain
	server.ReadTimeout = 10 * time.Second
	server.WriteTimeout = 10 * time.Second
	server.MaxMessageBytes = backend.maxBytes
	server.MaxRecipients = 50
	return server
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(_ *gosmtp.Conn) (gosmtp.Session, error) {
	return &session{backend: b}, nil
}

type session struct {
	backend     *Backend
	fromAddress string
	recipients  []string
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	s.fromAddress = strings.Trim(strings.TrimSpace(from), "<>")
	return nil
}

// Rcpt 处理 RCPT 命令，只接受回复域名下的地址。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := normalizeAddress(to)

	at := strings.LastIndexByte(addr, '@')
	if at <= 0 || at == len(addr)-1 {
		return errInvalidRecipient
	}
	if !strings.EqualFold(addr[at+1:], s.backend.domain) {
		return errRelayDenied
	}

	s.recipients = append(s.recipients, addr)
	return nil
}

// Data 解析邮件并交给 ReplyReceiver。
func (s *session) Data(r io.Reader) error {
	if len(s.recipients) == 0 {
		return errNoRecipients
	}

	raw, err := io.ReadAll(io.LimitReader(r, s.backend.maxBytes+1))
	if err != nil {
		return err
	}
	if int64(len(raw)) > s.backend.maxBytes {
		return errMessageTooLarge
	}

	parsed, err := ParseEmail(raw)
	if err != nil {
		return &gosmtp.SMTPError{
			Code:         554,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      fmt.Sprintf("malformed message: %v", err),
		}
	}

	// 头部 From 优先，缺失时使用信封发件人
	sender := parsed.From
	if strings.TrimSpace(sender) == "" {
		sender = s.fromAddress
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	message, err := s.backend.receiver.ReceiveReply(ctx, service.InboundReplyInput{
		Sender:    sender,
		Recipient: s.recipients[0],
		Subject:   parsed.Subject,
		Text:      parsed.Body(),
	})
	if err != nil {
		return s.backend.reject(err, sender)
	}

	s.backend.log.Info("reply accepted over SMTP",
		zap.String("messageId", message.MessageID),
		zap.String("clientId", message.ClientID),
		zap.Int("skippedAttachments", parsed.Attachments),
	)
	return nil
}

// reject 把业务错误转换为 SMTP 响应
func (b *Backend) reject(err error, sender string) error {
	var ve *service.ValidationError
	switch {
	case errors.Is(err, service.ErrMissingCorrelation):
		return errMissingMarker
	case errors.As(err, &ve):
		return &gosmtp.SMTPError{
			Code:         554,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      ve.Error(),
		}
	default:
		b.log.Error("failed to store SMTP reply", zap.String("sender", sender), zap.Error(err))
		return errTemporary
	}
}

// Reset 重置状态。
func (s *session) Reset() {
	s.fromAddress = ""
	s.recipients = nil
}

// Logout 会话结束。
func (s *session) Logout() error {
	return nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}
