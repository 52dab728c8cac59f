package cache

import (
	"context"
	"sync"
	"time"

	"msgrelay/backend/internal/domain"
	"msgrelay/backend/internal/storage"
)

// LocalCache 本地内存缓存，按邮箱缓存消息列表
//
// 特点：
// - 支持 TTL 过期
// - 定期清理过期条目
// - 容量限制，满时淘汰最早过期的条目
type LocalCache struct {
	mu      sync.RWMutex
	data    map[string]*cacheEntry
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

type cacheEntry struct {
	messages  []domain.Message
	expiresAt time.Time
}

// NewLocalCache 创建本地缓存
//
// 参数:
//   - maxSize: 最大缓存条目数
//   - ttl: 过期时间
func NewLocalCache(maxSize int, ttl time.Duration) *LocalCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	cache := &LocalCache{
		data:    make(map[string]*cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	// 启动定期清理
	go cache.cleanupLoop(time.Minute)

	return cache
}

// GetMessageList 读取缓存，未命中或已过期返回 storage.ErrCacheMiss
func (c *LocalCache) GetMessageList(_ context.Context, email string) ([]domain.Message, error) {
	c.mu.RLock()
	entry, ok := c.data[email]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expiresAt) {
		return nil, storage.ErrCacheMiss
	}
	return cloneMessages(entry.messages), nil
}

// SetMessageList 写入缓存
func (c *LocalCache) SetMessageList(_ context.Context, email string, messages []domain.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[email]; !exists && len(c.data) >= c.maxSize {
		c.evictLocked()
	}

	c.data[email] = &cacheEntry{
		messages:  cloneMessages(messages),
		expiresAt: c.now().Add(c.ttl),
	}
	return nil
}

// DeleteMessageList 删除缓存
func (c *LocalCache) DeleteMessageList(_ context.Context, email string) error {
	c.mu.Lock()
	delete(c.data, email)
	c.mu.Unlock()
	return nil
}

// Len 当前条目数（含未清理的过期条目）
func (c *LocalCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Close 停止清理协程
func (c *LocalCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

// evictLocked 淘汰最早过期的条目，调用方需持有写锁
func (c *LocalCache) evictLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for key, entry := range c.data {
		if oldestKey == "" || entry.expiresAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.expiresAt
		}
	}
	delete(c.data, oldestKey)
}

func (c *LocalCache) removeExpired() {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.data {
		if now.After(entry.expiresAt) {
			delete(c.data, key)
		}
	}
}

// cleanupLoop 定期清理过期条目
func (c *LocalCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func cloneMessages(messages []domain.Message) []domain.Message {
	out := make([]domain.Message, len(messages))
	copy(out, messages)
	return out
}
