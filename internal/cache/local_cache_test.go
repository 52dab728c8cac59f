package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"msgrelay/backend/internal/domain"
	"msgrelay/backend/internal/storage"
)

func newTestCache(t *testing.T, maxSize int, ttl time.Duration) (*LocalCache, *time.Time) {
	t.Helper()
	c := NewLocalCache(maxSize, ttl)
	t.Cleanup(c.Close)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestLocalCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, 10, time.Minute)

	_, err := c.GetMessageList(ctx, "c@x.com")
	assert.ErrorIs(t, err, storage.ErrCacheMiss)

	messages := []domain.Message{{MessageID: "m1", Email: "c@x.com"}}
	require.NoError(t, c.SetMessageList(ctx, "c@x.com", messages))

	// 修改原切片不影响缓存
	messages[0].MessageID = "changed"

	got, err := c.GetMessageList(ctx, "c@x.com")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].MessageID)

	require.NoError(t, c.DeleteMessageList(ctx, "c@x.com"))
	_, err = c.GetMessageList(ctx, "c@x.com")
	assert.ErrorIs(t, err, storage.ErrCacheMiss)
}

func TestLocalCache_EmptyListIsHit(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, 10, time.Minute)

	require.NoError(t, c.SetMessageList(ctx, "none@x.com", nil))

	got, err := c.GetMessageList(ctx, "none@x.com")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLocalCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c, now := newTestCache(t, 10, time.Minute)

	require.NoError(t, c.SetMessageList(ctx, "c@x.com", []domain.Message{{MessageID: "m1"}}))

	*now = now.Add(2 * time.Minute)
	_, err := c.GetMessageList(ctx, "c@x.com")
	assert.ErrorIs(t, err, storage.ErrCacheMiss)

	c.removeExpired()
	assert.Equal(t, 0, c.Len())
}

func TestLocalCache_Eviction(t *testing.T) {
	ctx := context.Background()
	c, now := newTestCache(t, 2, time.Minute)

	require.NoError(t, c.SetMessageList(ctx, "a@x.com", nil))
	*now = now.Add(time.Second)
	require.NoError(t, c.SetMessageList(ctx, "b@x.com", nil))
	*now = now.Add(time.Second)
	require.NoError(t, c.SetMessageList(ctx, "c@x.com", nil))

	assert.Equal(t, 2, c.Len())
	_, err := c.GetMessageList(ctx, "a@x.com")
	assert.ErrorIs(t, err, storage.ErrCacheMiss)
	_, err = c.GetMessageList(ctx, "c@x.com")
	assert.NoError(t, err)
}
