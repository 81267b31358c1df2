package lockservice

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/scenestack/pipeline/pkg/corerr"
)

func newTestService(t *testing.T) *Service {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client, time.Second, 10*time.Millisecond)
}

func TestService_TryAcquireExclusive(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	h, err := svc.TryAcquire(ctx, "project:p1:shot:s1", time.Minute)
	require.NoError(t, err)

	_, err = svc.TryAcquire(ctx, "project:p1:shot:s1", time.Minute)
	require.ErrorIs(t, err, corerr.ErrLockHeld)

	require.NoError(t, h.Release(ctx))

	h2, err := svc.TryAcquire(ctx, "project:p1:shot:s1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, h2.Release(ctx))
}

func TestService_AcquireBlocksUntilReleased(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	h, err := svc.TryAcquire(ctx, "project:p1:global_spec", time.Minute)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		h2, err := svc.Acquire(ctx, "project:p1:global_spec", time.Minute)
		require.NoError(t, err)
		require.NoError(t, h2.Release(ctx))
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, h.Release(ctx))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocking acquire never completed")
	}
}

func TestService_WithLockReleasesOnError(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	err := svc.WithLock(ctx, "project:p1:dna:e1", time.Minute, func(ctx context.Context) error {
		return corerr.ErrInvalidInput
	})
	require.ErrorIs(t, err, corerr.ErrInvalidInput)

	h, err := svc.TryAcquire(ctx, "project:p1:dna:e1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, h.Release(ctx))
}
