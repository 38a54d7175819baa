package lock

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

func TestKeyed_SerialisesSameKey(t *testing.T) {
	locker := NewKeyed()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(ctx, UserKey(1))
			if err != nil {
				t.Error(err)
				return
			}
			defer release()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 1, maxSeen)
	require.Zero(t, locker.size(), "entries are dropped after release")
}

func TestKeyed_DifferentKeysDoNotBlock(t *testing.T) {
	locker := NewKeyed()
	ctx := context.Background()

	releaseA, err := locker.Acquire(ctx, OrderKey(1))
	require.NoError(t, err)
	defer releaseA()

	ctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	releaseB, err := locker.Acquire(ctx, OrderKey(2))
	require.NoError(t, err)
	releaseB()
	releaseB()
}

func TestKeyed_AcquireHonoursContext(t *testing.T) {
	locker := NewKeyed()

	release, err := locker.Acquire(context.Background(), UserKey(7))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, UserKey(7))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	require.Zero(t, locker.size())
}

func TestRedisLocker_Integration(t *testing.T) {
	addr := os.Getenv("SHOP_REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("SHOP_REDIS_TEST_ADDR is not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis is not available: %v", err)
	}

	locker := NewRedisLocker(client, WithTTL(2*time.Second), WithRetryDelay(5*time.Millisecond))
	require.NoError(t, locker.Ping(ctx))

	key := OrderKey(time.Now().UnixNano())
	release, err := locker.Acquire(ctx, key)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(waitCtx, key)
	require.True(t, errors.Is(err, domain.ErrLockNotAcquired))

	release()
	release()

	again, err := locker.Acquire(ctx, key)
	require.NoError(t, err)
	again()
}
