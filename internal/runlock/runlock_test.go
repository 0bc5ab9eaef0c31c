package runlock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_Exclusive(t *testing.T) {
	l := NewLocal()
	var active, peak atomic.Int32

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
			assert.NoError(t, release(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
}

func TestLocal_AcquireHonorsContext(t *testing.T) {
	l := NewLocal()
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, release(context.Background()))
	require.NoError(t, release(context.Background()), "double release is harmless")

	again, err := l.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, again(context.Background()))
}

func TestConnect_BadURL(t *testing.T) {
	_, err := Connect("not a url")
	require.Error(t, err)
}

// Requires a live server; set BUTLER_TEST_REDIS_URL to run.
func TestRedis_ExclusiveAcrossLockers(t *testing.T) {
	url := os.Getenv("BUTLER_TEST_REDIS_URL")
	if url == "" {
		t.Skip("BUTLER_TEST_REDIS_URL not set")
	}
	client, err := Connect(url)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	key := "butler:test-lock:" + uuid.NewString()
	a := NewRedis(client, WithKey(key), WithRetryDelay(5*time.Millisecond))
	b := NewRedis(client, WithKey(key), WithRetryDelay(5*time.Millisecond))
	ctx := context.Background()

	release, err := a.Acquire(ctx)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = b.Acquire(waitCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, release(ctx))

	releaseB, err := b.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, releaseB(ctx))
}

func TestRedis_ReleaseAfterExpiry(t *testing.T) {
	url := os.Getenv("BUTLER_TEST_REDIS_URL")
	if url == "" {
		t.Skip("BUTLER_TEST_REDIS_URL not set")
	}
	client, err := Connect(url)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	key := "butler:test-lock:" + uuid.NewString()
	l := NewRedis(client, WithKey(key), WithTTL(20*time.Millisecond))
	ctx := context.Background()

	release, err := l.Acquire(ctx)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	require.ErrorIs(t, release(ctx), ErrNotHeld)
}
