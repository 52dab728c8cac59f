// Package mail 发送带关联标记的通知邮件。
package mail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/mail"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"msgrelay/backend/internal/config"
)

// sendMailFunc 与 gosmtp.SendMail 签名一致，测试中替换
type sendMailFunc func(addr string, a sasl.Client, from string, to []string, r io.Reader) error

// 连接中继的加密方式
const (
	TLSStartTLS = "starttls" // 明文连接后升级，中继必须支持 STARTTLS
	TLSImplicit = "implicit" // 直接建立 TLS 连接，通常是 465 端口
	TLSNone     = "none"     // 不加密，只用于内网中继和测试
)

// sendMailFor 按加密方式选择发送函数
func sendMailFor(mode string) (sendMailFunc, error) {
	switch mode {
	case "", TLSStartTLS:
		return gosmtp.SendMail, nil
	case TLSImplicit:
		return gosmtp.SendMailTLS, nil
	case TLSNone:
		return sendMailPlain, nil
	default:
		return nil, fmt.Errorf("unsupported mail.tls: %s (supported: starttls, implicit, none)", mode)
	}
}

// sendMailPlain 不加密投递
func sendMailPlain(addr string, a sasl.Client, from string, to []string, r io.Reader) error {
	c, err := gosmtp.Dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	if a != nil {
		if err := c.Auth(a); err != nil {
			return err
		}
	}
	if err := c.SendMail(from, to, r); err != nil {
		return err
	}
	return c.Quit()
}

// SMTPSender 通过 SMTP 中继发送邮件
type SMTPSender struct {
	addr     string
	from     string
	username string
	password string
	tls      string
	log      *zap.Logger
	now      func() time.Time
	sendMail sendMailFunc
}

// NewSMTPSender 创建 SMTP 发送器
func NewSMTPSender(cfg config.MailConfig, log *zap.Logger) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("mail.host is required for SMTP delivery")
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("invalid mail.from: %w", err)
	}
	send, err := sendMailFor(cfg.TLS)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SMTPSender{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from:     cfg.From,
		username: cfg.Username,
		password: cfg.Password,
		log:      log,
		now:      time.Now,
		tls:      cfg.TLS,
		sendMail: send,
	}, nil
}

// Send 发送一封纯文本邮件
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := BuildMessage(Envelope{
		From:    s.from,
		To:      to,
		Subject: subject,
		Body:    body,
		Date:    s.now(),
	})
	if err != nil {
		return err
	}

	envelopeFrom, _ := mail.ParseAddress(s.from)
	recipient, _ := mail.ParseAddress(to)

	var auth sasl.Client
	if s.username != "" {
		auth = sasl.NewPlainClient("", s.username, s.password)
	}

	start := time.Now()
	if err := s.sendMail(s.addr, auth, envelopeFrom.Address, []string{recipient.Address}, bytes.NewReader(raw)); err != nil {
		s.log.Error("smtp delivery failed",
			zap.String("relay", s.addr),
			zap.String("tls", s.tls),
			zap.String("to", recipient.Address),
			zap.Error(err),
		)
		return fmt.Errorf("smtp delivery to %s: %w", recipient.Address, err)
	}

	s.log.Info("notification email sent",
		zap.String("to", recipient.Address),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// LogSender 只记录日志，未配置 SMTP 中继时使用
type LogSender struct {
	from string
	log  *zap.Logger
}

// NewLogSender 创建日志发送器
func NewLogSender(from string, log *zap.Logger) *LogSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSender{from: from, log: log}
}

// Send 校验地址并记录邮件内容
func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := BuildMessage(Envelope{From: s.from, To: to, Subject: subject, Body: body}); err != nil {
		return err
	}
	s.log.Info("notification email (not delivered, no relay configured)",
		zap.String("from", s.from),
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}

// NewSender 按配置选择发送器
func NewSender(cfg config.MailConfig, log *zap.Logger) (Sender, error) {
	if cfg.Host == "" {
		return NewLogSender(cfg.From, log), nil
	}
	return NewSMTPSender(cfg, log)
}

// Sender 邮件发送接口
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}
