package hybrid

import (
	"context"
	"errors"
	"hash/fnv"
	"sync/atomic"

	"go.uber.org/zap"

	"msgrelay/backend/internal/domain"
	"msgrelay/backend/internal/storage"
)

// MessageListCache 按邮箱缓存消息列表
type MessageListCache interface {
	GetMessageList(ctx context.Context, email string) ([]domain.Message, error)
	SetMessageList(ctx context.Context, email string, messages []domain.Message) error
	DeleteMessageList(ctx context.Context, email string) error
}

// writeStripes 写入代数的分段数，不同邮箱可能共享一段，代价只是少一次回填
const writeStripes = 64

// Store 混合存储实现，数据库为准，缓存（Redis 或本地）只服务读路径
type Store struct {
	db    storage.Store
	cache MessageListCache
	log   *zap.Logger

	// 每次写入后递增；回源期间代数变化说明读到的列表可能已过期
	generations [writeStripes]atomic.Uint64
}

func (s *Store) generation(email string) *atomic.Uint64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(email))
	return &s.generations[h.Sum32()%writeStripes]
}

// NewStore 创建混合存储实例
func NewStore(db storage.Store, cache MessageListCache, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, cache: cache, log: log}
}

// SaveMessage 写入数据库后使该邮箱的列表缓存失效
func (s *Store) SaveMessage(ctx context.Context, message *domain.Message) error {
	if err := s.db.SaveMessage(ctx, message); err != nil {
		return err
	}
	s.generation(message.Email).Add(1)

	// 缓存失效失败不影响写入结果，读路径会在 TTL 后自愈
	if err := s.cache.DeleteMessageList(ctx, message.Email); err != nil {
		s.log.Warn("failed to invalidate message list cache",
			zap.String("email", message.Email),
			zap.Error(err),
		)
	}
	return nil
}

// ListMessagesByEmail 先查缓存，未命中时回源数据库并回填
//
// 回源期间若同一邮箱有写入，则不回填；回填之后才发生的写入由回填方删除，
// 保证并发写入不会被旧列表覆盖到 TTL 结束
func (s *Store) ListMessagesByEmail(ctx context.Context, email string) ([]domain.Message, error) {
	gen := s.generation(email)
	before := gen.Load()

	messages, err := s.cache.GetMessageList(ctx, email)
	if err == nil {
		return messages, nil
	}
	if !errors.Is(err, storage.ErrCacheMiss) {
		s.log.Warn("message list cache unavailable", zap.String("email", email), zap.Error(err))
	}

	messages, err = s.db.ListMessagesByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if gen.Load() != before {
		return messages, nil
	}
	if err := s.cache.SetMessageList(ctx, email, messages); err != nil {
		s.log.Warn("failed to fill message list cache", zap.String("email", email), zap.Error(err))
		return messages, nil
	}
	if gen.Load() != before {
		// 写入方的失效可能早于本次回填
		if err := s.cache.DeleteMessageList(ctx, email); err != nil {
			s.log.Warn("failed to drop stale message list", zap.String("email", email), zap.Error(err))
		}
	}
	return messages, nil
}

// Close 关闭底层数据库
func (s *Store) Close() error {
	return s.db.Close()
}

// Health 以数据库状态为准
func (s *Store) Health() error {
	return s.db.Health()
}
