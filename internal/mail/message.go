package mail

import (
	"bytes"
	"fmt"
	netmail "net/mail"
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// Envelope 一封待发送的纯文本邮件
type Envelope struct {
	From    string
	To      string
	Subject string
	Body    string
	Date    time.Time
}

// BuildMessage 生成 RFC 5322 格式的邮件内容，正文使用 quoted-printable 编码
func BuildMessage(env Envelope) ([]byte, error) {
	from, err := netmail.ParseAddress(env.From)
	if err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	to, err := netmail.ParseAddress(env.To)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	if strings.ContainsAny(env.Subject, "\r\n") {
		return nil, fmt.Errorf("subject must be a single line")
	}

	date := env.Date
	if date.IsZero() {
		date = time.Now()
	}

	var h gomail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*gomail.Address{(*gomail.Address)(from)})
	h.SetAddressList("To", []*gomail.Address{(*gomail.Address)(to)})
	h.SetSubject(env.Subject)
	h.SetMessageID(uuid.NewString() + "@" + domainOf(from.Address))
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	w, err := gomail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message writer: %w", err)
	}
	if _, err := w.Write([]byte(toCRLF(env.Body))); err != nil {
		return nil, fmt.Errorf("write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close message writer: %w", err)
	}

	return buf.Bytes(), nil
}

func domainOf(address string) string {
	if i := strings.LastIndexByte(address, '@'); i >= 0 && i < len(address)-1 {
		return address[i+1:]
	}
	return "localhost"
}

func toCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
