package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"msgrelay/backend/internal/domain"
)

// TaskSubmitter 异步任务提交
type TaskSubmitter interface {
	TrySubmit(task func()) error
}

// Async 把通知交给协程池执行，请求不等待通知完成
type Async struct {
	next    Notifier
	pool    TaskSubmitter
	timeout time.Duration
	log     *zap.Logger
}

// NewAsync 创建异步通知，timeout 限制单次通知耗时
func NewAsync(next Notifier, pool TaskSubmitter, timeout time.Duration, log *zap.Logger) *Async {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Async{next: next, pool: pool, timeout: timeout, log: log}
}

// NotifyReply 实现 Notifier
//
// 任务脱离请求的取消信号运行；提交失败时在当前协程同步通知。
func (a *Async) NotifyReply(ctx context.Context, message *domain.Message) {
	// 复制一份，调用方返回后可能继续修改原记录
	snapshot := *message
	detached := context.WithoutCancel(ctx)

	err := a.pool.TrySubmit(func() {
		taskCtx, cancel := context.WithTimeout(detached, a.timeout)
		defer cancel()
		a.next.NotifyReply(taskCtx, &snapshot)
	})
	if err != nil {
		a.log.Warn("notification queue unavailable, notifying synchronously",
			zap.String("messageId", message.MessageID),
			zap.Error(err),
		)
		a.next.NotifyReply(ctx, &snapshot)
	}
}
