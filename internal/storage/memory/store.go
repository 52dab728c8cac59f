package memory

import (
	"context"
	"sync"

	"msgrelay/backend/internal/domain"
	"msgrelay/backend/internal/storage"
)

// Store 使用内存保存消息数据，主要用于开发验证。
type Store struct {
	mu       sync.RWMutex
	messages map[string]*domain.Message // messageID -> message
	byEmail  map[string][]string        // email -> messageIDs（写入顺序）
	closed   bool
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		messages: make(map[string]*domain.Message),
		byEmail:  make(map[string][]string),
	}
}

// SaveMessage 保存消息，同一 ID 重复写入时覆盖。
func (s *Store) SaveMessage(_ context.Context, message *domain.Message) error {
	if err := storage.CheckMessage(message); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStoreClosed
	}

	copied := *message
	if existing, ok := s.messages[message.MessageID]; ok {
		if existing.Email != message.Email {
			s.byEmail[existing.Email] = removeID(s.byEmail[existing.Email], message.MessageID)
			s.byEmail[message.Email] = append(s.byEmail[message.Email], message.MessageID)
		}
		s.messages[message.MessageID] = &copied
		return nil
	}

	s.messages[message.MessageID] = &copied
	s.byEmail[message.Email] = append(s.byEmail[message.Email], message.MessageID)
	return nil
}

// ListMessagesByEmail 按写入顺序返回指定邮箱的全部消息快照。
func (s *Store) ListMessagesByEmail(_ context.Context, email string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrStoreClosed
	}

	ids := s.byEmail[email]
	result := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		if msg, ok := s.messages[id]; ok {
			result = append(result, *msg)
		}
	}
	return result, nil
}

// Count 返回消息总数
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Close 关闭存储
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Health 检查存储状态
func (s *Store) Health() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrStoreClosed
	}
	return nil
}

func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
