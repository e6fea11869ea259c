package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/Ramsey-B/sortinghat/pkg/redis"
)

func newClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := goredis.ParseURL(url)
	require.NoError(t, err)

	client := redis.NewClientFrom(goredis.NewClient(opts), ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx))
	return client
}

func TestLocker(t *testing.T) {
	ctx := context.Background()
	locker := redis.NewLocker(newClient(t), "test:")

	lock, err := locker.Acquire(ctx, "task:1", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "task:1", time.Minute)
	assert.ErrorIs(t, err, redis.ErrLockNotAcquired)

	err = locker.WithLock(ctx, "task:1", time.Minute, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, redis.ErrLockNotAcquired)

	require.NoError(t, lock.Extend(ctx, 2*time.Minute))
	require.NoError(t, lock.Release(ctx))
	assert.ErrorIs(t, lock.Release(ctx), redis.ErrLockNotHeld)

	ran := false
	err = locker.WithLock(ctx, "task:1", time.Minute, func(ctx context.Context) error {
		ran = true
		_, err := locker.Acquire(ctx, "task:1", time.Minute)
		assert.ErrorIs(t, err, redis.ErrLockNotAcquired)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	lock, err = locker.Acquire(ctx, "task:1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, lock.Release(ctx))
}
