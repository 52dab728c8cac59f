package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"msgrelay/backend/internal/domain"
	"msgrelay/backend/internal/storage"
)

// ErrCacheMiss 缓存中不存在
var ErrCacheMiss = storage.ErrCacheMiss

const messageListPrefix = "relay:messages:"

// Cache Redis 缓存实现
type Cache struct {
	client goredis.Cmdable
	ttl    time.Duration
}

// NewCache 创建 Redis 缓存实例
func NewCache(client goredis.Cmdable, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

// MessageListKey 邮箱消息列表的缓存键
func MessageListKey(email string) string {
	return messageListPrefix + email
}

// GetMessageList 获取缓存的消息列表
func (c *Cache) GetMessageList(ctx context.Context, email string) ([]domain.Message, error) {
	data, err := c.client.Get(ctx, MessageListKey(email)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return decodeMessages(data)
}

// SetMessageList 缓存消息列表
func (c *Cache) SetMessageList(ctx context.Context, email string, messages []domain.Message) error {
	data, err := encodeMessages(messages)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, MessageListKey(email), data, c.ttl).Err()
}

// DeleteMessageList 删除缓存的消息列表
func (c *Cache) DeleteMessageList(ctx context.Context, email string) error {
	return c.client.Del(ctx, MessageListKey(email)).Err()
}

func encodeMessages(messages []domain.Message) ([]byte, error) {
	if messages == nil {
		messages = []domain.Message{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("encode message list: %w", err)
	}
	return data, nil
}

func decodeMessages(data []byte) ([]domain.Message, error) {
	messages := make([]domain.Message, 0)
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("decode message list: %w", err)
	}
	return messages, nil
}
