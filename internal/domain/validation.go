package domain

import (
	"errors"
	"net/mail"
	"strings"
)

// 验证相关的错误定义
var (
	ErrInvalidEmail    = errors.New("invalid email format")
	ErrEmailTooLong    = errors.New("email address too long")
	ErrSubjectTooLong  = errors.New("subject too long (max 500 chars)")
	ErrMessageTooLarge = errors.New("message body too large")
)

// 验证常量
const (
	// RFC 5322 邮箱地址长度限制
	MaxEmailLength = 254

	MaxSubjectLength = 500
	MaxMessageLength = 100000
)

// NormalizeAddress 解析邮箱地址并返回纯地址部分
//
// 支持 "Name <user@example.com>" 形式，入站邮件的 sender 字段通常是这种格式。
func NormalizeAddress(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(value)
	if err != nil {
		return "", ErrInvalidEmail
	}

	address := addr.Address
	if len(address) > MaxEmailLength {
		return "", ErrEmailTooLong
	}
	return address, nil
}

// ValidateSubject 检查邮件主题
func ValidateSubject(subject string) error {
	if len(subject) > MaxSubjectLength {
		return ErrSubjectTooLong
	}
	return nil
}

// ValidateMessageBody 检查消息正文大小
func ValidateMessageBody(body string) error {
	if len(body) > MaxMessageLength {
		return ErrMessageTooLarge
	}
	return nil
}
