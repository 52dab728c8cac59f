package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"msgrelay/backend/internal/config"
)

// Client 持有中继共用的 Redis 连接，列表缓存与回复事件发布共享同一连接池
type Client struct {
	rdb      *goredis.Client
	cacheTTL time.Duration
	channel  string
	log      *zap.Logger
}

// Options 将中继的 Redis 配置转换为连接参数，未设置的项使用默认值
func Options(cfg *config.RedisConfig) *goredis.Options {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	opTimeout := cfg.OpTimeout
	if opTimeout <= 0 {
		opTimeout = 3 * time.Second
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	minIdle := cfg.MinIdleConns
	if minIdle > poolSize {
		minIdle = poolSize
	}

	return &goredis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
		PoolSize:     poolSize,
		MinIdleConns: minIdle,
	}
}

// New 连接 Redis 并在 DialTimeout 内完成一次 PING，失败时返回错误由调用方降级
func New(cfg *config.RedisConfig, log *zap.Logger) (*Client, error) {
	opts := Options(cfg)
	rdb := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Address, err)
	}

	c := newClient(rdb, cfg, log)
	c.log.Info("connected to Redis",
		zap.String("address", cfg.Address),
		zap.Int("db", cfg.DB),
		zap.Int("pool_size", opts.PoolSize),
		zap.Int("min_idle_conns", opts.MinIdleConns),
	)
	return c, nil
}

func newClient(rdb *goredis.Client, cfg *config.RedisConfig, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		rdb:      rdb,
		cacheTTL: cfg.CacheTTL,
		channel:  cfg.Channel,
		log:      log,
	}
}

// Cache 基于该连接创建消息列表缓存
func (c *Client) Cache() *Cache {
	return NewCache(c.rdb, c.cacheTTL)
}

// Publisher 基于该连接创建回复事件发布器
func (c *Client) Publisher() *Publisher {
	return NewPublisher(c.rdb, c.channel)
}

// Ping 供健康检查使用
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close 关闭连接池
func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		c.log.Error("failed to close Redis connection", zap.Error(err))
		return err
	}
	c.log.Info("Redis connection closed")
	return nil
}
