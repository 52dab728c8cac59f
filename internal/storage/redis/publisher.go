package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"msgrelay/backend/internal/domain"
)

// DefaultChannel 回复事件默认发布频道
const DefaultChannel = "relay:inbound"

// ReplyEvent 发布到频道的回复事件
type ReplyEvent struct {
	MessageID string    `json:"messageId"`
	ClientID  string    `json:"clientId"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewReplyEvent 由已保存的回复构造事件
func NewReplyEvent(message *domain.Message) ReplyEvent {
	return ReplyEvent{
		MessageID: message.MessageID,
		ClientID:  message.ClientID,
		Email:     message.Email,
		Subject:   message.Subject,
		Timestamp: message.Timestamp,
	}
}

// Publisher 通过 Redis Pub/Sub 发布回复事件
type Publisher struct {
	client  goredis.Cmdable
	channel string
}

// NewPublisher 创建发布器
func NewPublisher(client goredis.Cmdable, channel string) *Publisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: client, channel: channel}
}

// Channel 返回发布频道
func (p *Publisher) Channel() string {
	return p.channel
}

// PublishReply 发布回复事件，返回收到消息的订阅者数量
func (p *Publisher) PublishReply(ctx context.Context, message *domain.Message) (int64, error) {
	payload, err := json.Marshal(NewReplyEvent(message))
	if err != nil {
		return 0, fmt.Errorf("encode reply event: %w", err)
	}
	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("publish reply event: %w", err)
	}
	return receivers, nil
}
