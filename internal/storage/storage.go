package storage

import (
	"context"
	"errors"

	"msgrelay/backend/internal/domain"
)

var (
	// ErrStoreClosed 存储已关闭
	ErrStoreClosed = errors.New("store is closed")
	// ErrInvalidMessage 消息缺少主键或时间戳
	ErrInvalidMessage = errors.New("message id and timestamp are required")
	// ErrCacheMiss 缓存中不存在
	ErrCacheMiss = errors.New("not found in cache")
)

// MessageRepository 定义消息数据存取操作。
//
// SaveMessage 按 MessageID 幂等写入：同一 ID 重复写入覆盖原记录。
// ListMessagesByEmail 返回 email 字段完全相等的全部记录，顺序由具体实现决定，不分页。
type MessageRepository interface {
	SaveMessage(ctx context.Context, message *domain.Message) error
	ListMessagesByEmail(ctx context.Context, email string) ([]domain.Message, error)
}

// Store 定义完整的存储接口。
type Store interface {
	MessageRepository

	// 工具方法
	Close() error
	Health() error
}

// CheckMessage 写入前的基础检查，所有存储实现共用
func CheckMessage(message *domain.Message) error {
	if message == nil || message.MessageID == "" || message.Timestamp.IsZero() {
		return ErrInvalidMessage
	}
	return nil
}
