package pool

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWorkerPool_RunsTasks(t *testing.T) {
	p := NewWorkerPool(3, 16, nil)
	p.Start(context.Background())

	var count atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.TrySubmit(func() { count.Add(1) }))
	}

	p.Stop()
	assert.Equal(t, int32(10), count.Load())
}

func TestWorkerPool_Closed(t *testing.T) {
	p := NewWorkerPool(1, 1, nil)
	p.Start(context.Background())
	p.Stop()
	p.Stop()

	assert.ErrorIs(t, p.TrySubmit(func() {}), ErrPoolClosed)
}

func TestWorkerPool_QueueFull(t *testing.T) {
	// 未启动的协程池不会消费任务
	p := NewWorkerPool(1, 1, nil)

	require.NoError(t, p.TrySubmit(func() {}))
	assert.ErrorIs(t, p.TrySubmit(func() {}), ErrQueueFull)
}

func TestWorkerPool_RecoversPanic(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	p := NewWorkerPool(1, 4, zap.New(core))
	p.Start(context.Background())

	var ran atomic.Bool
	require.NoError(t, p.TrySubmit(func() { panic("boom") }))
	require.NoError(t, p.TrySubmit(func() { ran.Store(true) }))
	p.Stop()

	assert.True(t, ran.Load())
	assert.Equal(t, 1, logs.FilterMessage("worker task panicked").Len())
}
