package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"msgrelay/backend/internal/domain"
	"msgrelay/backend/internal/pool"
)

type captureNotifier struct {
	mu       sync.Mutex
	messages []domain.Message
	ctxErr   []error
}

func (c *captureNotifier) NotifyReply(ctx context.Context, message *domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, *message)
	c.ctxErr = append(c.ctxErr, ctx.Err())
}

type rejectingSubmitter struct{}

func (rejectingSubmitter) TrySubmit(func()) error { return errors.New("full") }

func TestAsync_DetachedFromRequest(t *testing.T) {
	next := &captureNotifier{}
	p := pool.NewWorkerPool(1, 4, nil)
	p.Start(context.Background())

	n := NewAsync(next, p, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	msg := reply()
	n.NotifyReply(ctx, msg)
	cancel()
	msg.ClientID = "changed"

	p.Stop()

	require.Len(t, next.messages, 1)
	assert.Equal(t, "42", next.messages[0].ClientID)
	assert.NoError(t, next.ctxErr[0])
}

func TestAsync_FallsBackWhenQueueUnavailable(t *testing.T) {
	next := &captureNotifier{}
	n := NewAsync(next, rejectingSubmitter{}, 0, nil)

	n.NotifyReply(context.Background(), reply())

	require.Len(t, next.messages, 1)
	assert.Equal(t, "m1", next.messages[0].MessageID)
}
