package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedOperation 无法识别的方法与路径组合
	ErrUnsupportedOperation = errors.New("unsupported operation")
	// ErrMissingCorrelation 回复正文中没有 ClientId 标记
	ErrMissingCorrelation = errors.New("missing ClientId correlation marker")
)

// ValidationError 请求字段缺失或格式错误，不会触发任何写入
type ValidationError struct {
	Reason string
	Fields []string
	Err    error
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Reason
	}
	return e.Reason + ": " + strings.Join(e.Fields, "; ")
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError 创建校验错误
func NewValidationError(reason string, fields ...string) *ValidationError {
	return &ValidationError{Reason: reason, Fields: fields}
}

// DownstreamError 存储或邮件等外部依赖返回的错误
type DownstreamError struct {
	Op  string
	Err error
}

func (e *DownstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DownstreamError) Unwrap() error {
	return e.Err
}

// Detail 返回底层错误描述
func (e *DownstreamError) Detail() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// IsValidation 判断是否为校验错误
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsDownstream 判断是否为外部依赖错误
func IsDownstream(err error) bool {
	var de *DownstreamError
	return errors.As(err, &de)
}
