package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"msgrelay/backend/internal/config"
	"msgrelay/backend/internal/marker"
)

type capturedMail struct {
	addr string
	auth sasl.Client
	from string
	to   []string
	raw  []byte
}

func newTestSender(t *testing.T, cfg config.MailConfig, fail error) (*SMTPSender, *capturedMail) {
	t.Helper()
	s, err := NewSMTPSender(cfg, nil)
	require.NoError(t, err)

	captured := &capturedMail{}
	s.now = func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) }
	s.sendMail = func(addr string, a sasl.Client, from string, to []string, r io.Reader) error {
		raw, err := io.ReadAll(r)
		require.NoError(t, err)
		*captured = capturedMail{addr: addr, auth: a, from: from, to: to, raw: raw}
		return fail
	}
	return s, captured
}

func TestSMTPSenderSend(t *testing.T) {
	cfg := config.MailConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "relay",
		Password: "secret",
		From:     "Relay <noreply@relay.local>",
	}

	t.Run("发送带标记的邮件", func(t *testing.T) {
		s, captured := newTestSender(t, cfg, nil)
		body, err := marker.Append("hello", "42")
		require.NoError(t, err)

		require.NoError(t, s.Send(context.Background(), "Client <c@x.com>", "You have a new message", body))

		assert.Equal(t, "smtp.example.com:587", captured.addr)
		assert.NotNil(t, captured.auth)
		assert.Equal(t, "noreply@relay.local", captured.from)
		assert.Equal(t, []string{"c@x.com"}, captured.to)

		subject, text := readMessage(t, captured.raw)
		assert.Equal(t, "You have a new message", subject)
		assert.Contains(t, string(captured.raw), "Content-Transfer-Encoding: quoted-printable")

		clientID, ok := marker.Extract(text)
		require.True(t, ok)
		assert.Equal(t, "42", clientID)
	})

	t.Run("无用户名时不认证", func(t *testing.T) {
		anon := cfg
		anon.Username = ""
		s, captured := newTestSender(t, anon, nil)

		require.NoError(t, s.Send(context.Background(), "c@x.com", "s", "b"))
		assert.Nil(t, captured.auth)
	})

	t.Run("中继错误被包装返回", func(t *testing.T) {
		s, _ := newTestSender(t, cfg, errors.New("535 authentication failed"))

		err := s.Send(context.Background(), "c@x.com", "s", "b")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "535 authentication failed")
	})

	t.Run("收件人格式错误", func(t *testing.T) {
		s, captured := newTestSender(t, cfg, nil)

		assert.Error(t, s.Send(context.Background(), "not-an-address", "s", "b"))
		assert.Nil(t, captured.raw)
	})

	t.Run("上下文已取消", func(t *testing.T) {
		s, captured := newTestSender(t, cfg, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, s.Send(ctx, "c@x.com", "s", "b"), context.Canceled)
		assert.Nil(t, captured.raw)
	})
}

// readMessage 解析邮件，返回解码后的主题与正文
func readMessage(t *testing.T, raw []byte) (string, string) {
	t.Helper()

	entity, err := message.Read(bytes.NewReader(raw))
	require.NoError(t, err)

	header := gomail.Header{Header: entity.Header}
	subject, err := header.Subject()
	require.NoError(t, err)

	body, err := io.ReadAll(entity.Body)
	require.NoError(t, err)
	return subject, string(body)
}

func TestBuildMessage(t *testing.T) {
	raw, err := BuildMessage(Envelope{
		From:    "noreply@relay.local",
		To:      "c@x.com",
		Subject: "新消息",
		Body:    "line1\nline2",
	})
	require.NoError(t, err)

	text := string(raw)
	assert.Contains(t, text, "Message-Id: <")
	assert.Contains(t, text, "@relay.local>")

	subject, body := readMessage(t, raw)
	assert.Equal(t, "新消息", subject)
	assert.True(t, strings.Contains(body, "line1\r\nline2"))

	_, err = BuildMessage(Envelope{From: "noreply@relay.local", To: "c@x.com", Subject: "a\r\nBcc: x@y.z"})
	assert.Error(t, err)
}

func TestNewSender(t *testing.T) {
	s, err := NewSender(config.MailConfig{From: "noreply@relay.local"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, s)
	assert.NoError(t, s.Send(context.Background(), "c@x.com", "s", "b"))

	s, err = NewSender(config.MailConfig{Host: "smtp.example.com", Port: 25, From: "noreply@relay.local"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SMTPSender{}, s)

	_, err = NewSender(config.MailConfig{Host: "smtp.example.com", Port: 25, From: "bad"}, nil)
	assert.Error(t, err)
}

func TestSMTPSenderTLSMode(t *testing.T) {
	base := config.MailConfig{Host: "smtp.example.com", Port: 465, From: "noreply@relay.local"}

	for _, mode := range []string{"", TLSStartTLS, TLSImplicit, TLSNone} {
		cfg := base
		cfg.TLS = mode
		s, err := NewSMTPSender(cfg, nil)
		require.NoError(t, err, mode)
		assert.NotNil(t, s.sendMail, mode)
	}

	cfg := base
	cfg.TLS = "ssl"
	_, err := NewSMTPSender(cfg, nil)
	assert.Error(t, err)
}

// captureBackend 记录收到的邮件
type captureBackend struct {
	mu    sync.Mutex
	from  string
	to    []string
	data  []byte
	count int
}

func (b *captureBackend) NewSession(_ *gosmtp.Conn) (gosmtp.Session, error) {
	return &captureSession{backend: b}, nil
}

type captureSession struct {
	backend *captureBackend
	from    string
	to      []string
}

func (s *captureSession) Mail(from string, _ *gosmtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *captureSession) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	s.to = append(s.to, to)
	return nil
}

func (s *captureSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.from = s.from
	s.backend.to = s.to
	s.backend.data = data
	s.backend.count++
	return nil
}

func (s *captureSession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *captureSession) Logout() error { return nil }

func TestSMTPSenderPlainDelivery(t *testing.T) {
	backend := &captureBackend{}
	server := gosmtp.NewServer(backend)
	server.Domain = "relay.local"

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.Serve(listener) }()
	defer server.Close()

	host, port, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)

	cfg := config.MailConfig{Host: host, From: "noreply@relay.local", TLS: TLSNone}
	_, err = fmt.Sscan(port, &cfg.Port)
	require.NoError(t, err)

	s, err := NewSMTPSender(cfg, nil)
	require.NoError(t, err)

	body, err := marker.Append("hello", "42")
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), "c@x.com", "You have a new message", body))

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Equal(t, 1, backend.count)
	assert.Equal(t, "noreply@relay.local", backend.from)
	assert.Equal(t, []string{"c@x.com"}, backend.to)

	_, text := readMessage(t, backend.data)
	clientID, ok := marker.Extract(text)
	require.True(t, ok)
	assert.Equal(t, "42", clientID)
}
