package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"msgrelay/backend/internal/cache"
	"msgrelay/backend/internal/config"
	"msgrelay/backend/internal/dispatch"
	"msgrelay/backend/internal/health"
	"msgrelay/backend/internal/logger"
	"msgrelay/backend/internal/mail"
	"msgrelay/backend/internal/monitoring"
	"msgrelay/backend/internal/notify"
	"msgrelay/backend/internal/pool"
	"msgrelay/backend/internal/service"
	"msgrelay/backend/internal/smtp"
	"msgrelay/backend/internal/storage"
	"msgrelay/backend/internal/storage/hybrid"
	"msgrelay/backend/internal/storage/memory"
	"msgrelay/backend/internal/storage/postgres"
	redisstore "msgrelay/backend/internal/storage/redis"
	sqlstore "msgrelay/backend/internal/storage/sql"
	httptransport "msgrelay/backend/internal/transport/http"
)

// main 启动 HTTP 接口与可选的 SMTP 回复接收服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.FromConfig(cfg.Log))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting message relay",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层
	dbStore, err := initializeStorage(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}

	var (
		store       storage.Store = dbStore
		redisClient *redisstore.Client
		publisher   *redisstore.Publisher
	)

	// Redis 可选：列表缓存与回复事件发布
	if cfg.Redis.Enabled() {
		redisClient, err = redisstore.New(&cfg.Redis, log)
		if err != nil {
			log.Warn("redis unavailable, continuing without cache", zap.Error(err))
			redisClient = nil
		} else {
			store = hybrid.NewStore(dbStore, redisClient.Cache(), log)
			publisher = redisClient.Publisher()
			log.Info("redis cache enabled", zap.Duration("ttl", cfg.Redis.CacheTTL))
		}
	}

	// 没有 Redis 时可以为数据库存储启用本地列表缓存
	var localCache *cache.LocalCache
	if redisClient == nil && !cfg.Database.UsesMemory() && cfg.Cache.LocalSize > 0 {
		localCache = cache.NewLocalCache(cfg.Cache.LocalSize, cfg.Cache.LocalTTL)
		store = hybrid.NewStore(dbStore, localCache, log)
		log.Info("local cache enabled",
			zap.Int("size", cfg.Cache.LocalSize),
			zap.Duration("ttl", cfg.Cache.LocalTTL),
		)
	}

	// 初始化监控系统
	metrics := monitoring.NewMetrics(nil)

	// 初始化健康检查
	var redisPinger health.Pinger
	if redisClient != nil {
		redisPinger = redisClient
	}
	healthChecker := health.NewHealthChecker(store, redisPinger, log)

	// 通知邮件发送器
	sender, err := mail.NewSender(cfg.Mail, log)
	if err != nil {
		log.Fatal("failed to initialize mail sender", zap.Error(err))
	}

	// 管理员通知
	notifiers := notify.Multi{notify.NewLogNotifier(log)}
	if cfg.Mail.AdminAddress != "" {
		notifiers = append(notifiers, notify.NewMailNotifier(sender, cfg.Mail.AdminAddress, log))
	}
	if publisher != nil {
		notifiers = append(notifiers, notify.NewPublishNotifier(publisher, log))
	}

	// 通知异步执行，回复请求不等待管理员通知
	var (
		adminNotifier service.AdminNotifier = notifiers
		notifyPool    *pool.WorkerPool
	)
	if cfg.Notify.Workers > 0 {
		notifyPool = pool.NewWorkerPool(cfg.Notify.Workers, cfg.Notify.QueueSize, log)
		adminNotifier = notify.NewAsync(notifiers, notifyPool, cfg.Notify.Timeout, log)
	}

	relay := service.NewRelayService(store, sender, adminNotifier, log,
		service.WithSubject(cfg.Mail.Subject),
		service.WithRecorder(metrics),
	)

	// 创建 HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:  cfg,
		Events:  dispatch.NewRouter(relay, log),
		Metrics: metrics,
		Health:  healthChecker,
		Logger:  log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 回复接收 SMTP 服务器
	var smtpServer *gosmtp.Server
	if cfg.SMTP.Enabled {
		backend := smtp.NewBackend(relay, cfg.SMTP.Domain, cfg.SMTP.MaxMessageBytes, log)
		smtpServer = smtp.NewServer(backend, cfg.SMTP)
	}

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	if notifyPool != nil {
		// 协程池不跟随信号退出，关闭时由 Stop 排空队列
		notifyPool.Start(context.Background())
	}

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// SMTP 服务器 goroutine
	if smtpServer != nil {
		group.Go(func() error {
			log.Info("starting SMTP server",
				zap.String("address", cfg.SMTP.BindAddr),
				zap.String("domain", cfg.SMTP.Domain),
			)
			if err := smtpServer.ListenAndServe(); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
				log.Error("SMTP server error", zap.Error(err))
				return err
			}
			return nil
		})
	}

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// 关闭 HTTP 服务器
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		// 关闭 SMTP 服务器
		if smtpServer != nil {
			if err := smtpServer.Shutdown(shutdownCtx); err != nil {
				log.Warn("SMTP server shutdown warning", zap.Error(err))
			}
		}

		if notifyPool != nil {
			notifyPool.Stop()
		}

		if err := store.Close(); err != nil {
			log.Warn("store close warning", zap.Error(err))
		}
		if redisClient != nil {
			_ = redisClient.Close()
		}
		if localCache != nil {
			localCache.Close()
		}

		log.Info("servers stopped")
		return nil
	})

	// 等待所有 goroutine 完成
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// initializeStorage 根据配置选择存储实现
//
// database.type 为空时使用内存存储；database.driver 为 "sql" 时使用
// database/sql 实现，否则使用 GORM。
func initializeStorage(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	db := cfg.Database
	if db.UsesMemory() {
		log.Info("using memory storage (development mode)")
		return memory.NewStore(), nil
	}

	if db.Driver == "sql" {
		store, err := sqlstore.NewStore(db.Type, db.DSN, db.MaxOpenConns, db.MaxIdleConns, db.ConnMaxLifetime)
		if err != nil {
			return nil, err
		}
		log.Info("using database/sql storage", zap.String("type", db.Type))
		return store, nil
	}

	pool := postgres.PoolOptions{
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
	}

	var (
		store *postgres.Store
		err   error
	)
	switch db.Type {
	case "postgres":
		store, err = postgres.NewStore(db.DSN, pool)
	case "mysql":
		store, err = postgres.NewMySQLStore(db.DSN, pool)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", db.Type)
	}
	if err != nil {
		return nil, err
	}
	log.Info("using gorm storage", zap.String("type", db.Type))
	return store, nil
}
