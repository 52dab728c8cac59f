package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// StoreChecker 存储健康检查
type StoreChecker interface {
	Health() error
}

// Pinger 可 ping 的外部依赖，例如 Redis
type Pinger interface {
	Ping(ctx context.Context) error
}

const pingTimeout = 2 * time.Second

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	store  StoreChecker
	redis  Pinger
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器，redis 为空时不检查
func NewHealthChecker(store StoreChecker, redis Pinger, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		store:  store,
		redis:  redis,
		logger: logger,
	}

	hc.addChecks()

	return hc
}

// addChecks 添加健康检查
func (hc *HealthChecker) addChecks() {
	hc.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(10000))

	hc.health.AddReadinessCheck("database", hc.checkStore)

	if hc.redis != nil {
		hc.health.AddReadinessCheck("redis", hc.checkRedis)
	}
}

func (hc *HealthChecker) checkStore() error {
	if err := hc.store.Health(); err != nil {
		hc.logger.Warn("store health check failed", zap.Error(err))
		return err
	}
	return nil
}

func (hc *HealthChecker) checkRedis() error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := hc.redis.Ping(ctx); err != nil {
		hc.logger.Warn("redis health check failed", zap.Error(err))
		return err
	}
	return nil
}

// Handler 返回健康检查处理器，/live 与 /ready 两个子路径
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// LiveEndpoint 存活检查
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}

// CheckHealth 执行健康检查并返回各项状态
func (hc *HealthChecker) CheckHealth() map[string]string {
	results := make(map[string]string)

	if err := hc.checkStore(); err != nil {
		results["database"] = fmt.Sprintf("ERROR: %v", err)
	} else {
		results["database"] = "OK"
	}

	if hc.redis == nil {
		results["redis"] = "NOT_CONFIGURED"
	} else if err := hc.checkRedis(); err != nil {
		results["redis"] = fmt.Sprintf("ERROR: %v", err)
	} else {
		results["redis"] = "OK"
	}

	results["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return results
}

// Healthy 所有检查是否通过
func Healthy(results map[string]string) bool {
	for key, value := range results {
		if key == "timestamp" {
			continue
		}
		if value != "OK" && value != "NOT_CONFIGURED" {
			return false
		}
	}
	return true
}
