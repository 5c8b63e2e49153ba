package xcron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestScheduler_AddJobErrors(t *testing.T) {
	s := New()
	_, err := s.AddFunc("@every 1m", nil)
	assert.ErrorIs(t, err, ErrNilJob)
	_, err = s.AddJob("@every 1m", nil)
	assert.ErrorIs(t, err, ErrNilJob)
	_, err = s.AddFunc("not a cron expression", func(context.Context) error { return nil })
	assert.Error(t, err)

	_, client := setupRedis(t)
	locked := New(WithLocker(NewRedisLocker(client)))
	_, err = locked.AddFunc("@every 1m", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrMissingName)

	id, err := locked.AddFunc("@every 1m", func(context.Context) error { return nil }, WithName("sweep"))
	require.NoError(t, err)
	assert.Len(t, locked.Entries(), 1)
	locked.Remove(id)
	assert.Empty(t, locked.Entries())
}

func TestScheduler_RunsAndStops(t *testing.T) {
	s := New(WithSeconds())
	var runs atomic.Int32
	_, err := s.AddFunc("@every 1s", func(context.Context) error {
		runs.Add(1)
		return nil
	}, WithName("tick"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestWrapper_LockHeldSkips(t *testing.T) {
	_, client := setupRedis(t)
	locker := NewRedisLocker(client)
	opts := defaultJobOptions()
	opts.name = "sweep"

	held, err := locker.TryLock(context.Background(), "sweep", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, held)

	var runs atomic.Int32
	w := newJobWrapper(JobFunc(func(context.Context) error {
		runs.Add(1)
		return nil
	}), locker, defaultSchedulerOptions().logger, opts)

	ran, err := w.run(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Zero(t, runs.Load())

	require.NoError(t, held.Unlock(context.Background()))
	ran, err = w.run(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, int32(1), runs.Load())
}

func TestWrapper_ReleasesLock(t *testing.T) {
	mr, client := setupRedis(t)
	opts := defaultJobOptions()
	opts.name = "sweep"
	w := newJobWrapper(JobFunc(func(context.Context) error {
		if !mr.Exists(DefaultLockPrefix + "sweep") {
			return errors.New("lock not held during run")
		}
		return nil
	}), NewRedisLocker(client), defaultSchedulerOptions().logger, opts)

	ran, err := w.run(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists(DefaultLockPrefix+"sweep"))
}

func TestWrapper_PanicAndTimeout(t *testing.T) {
	opts := defaultJobOptions()
	opts.name = "boom"
	w := newJobWrapper(JobFunc(func(context.Context) error { panic("bad") }),
		NoopLocker(), defaultSchedulerOptions().logger, opts)
	ran, err := w.run(context.Background())
	assert.True(t, ran)
	assert.ErrorContains(t, err, "panicked")

	opts = defaultJobOptions()
	WithTimeout(10 * time.Millisecond)(opts)
	w = newJobWrapper(JobFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), NoopLocker(), defaultSchedulerOptions().logger, opts)
	_, err = w.run(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWrapper_LockServiceDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	opts := defaultJobOptions()
	opts.name = "sweep"
	WithLockTimeout(200 * time.Millisecond)(opts)
	w := newJobWrapper(JobFunc(func(context.Context) error { return nil }),
		NewRedisLocker(client), defaultSchedulerOptions().logger, opts)
	ran, err := w.run(context.Background())
	assert.NoError(t, err)
	assert.False(t, ran)
}

func TestRedisLocker(t *testing.T) {
	mr, client := setupRedis(t)
	locker := NewRedisLocker(client, WithRedisKeyPrefix("test:lock:"))
	ctx := context.Background()

	h, err := locker.TryLock(ctx, "job", 10*time.Second)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "test:lock:job", h.Key())
	assert.True(t, mr.Exists("test:lock:job"))

	again, err := locker.TryLock(ctx, "job", 10*time.Second)
	require.NoError(t, err)
	assert.Nil(t, again)

	require.NoError(t, h.Extend(ctx))
	require.NoError(t, h.Unlock(ctx))
	assert.ErrorIs(t, h.Unlock(ctx), ErrLockNotHeld)

	assert.Panics(t, func() { NewRedisLocker(nil) })
}

func TestNoopLocker(t *testing.T) {
	h, err := NoopLocker().TryLock(context.Background(), "k", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "k", h.Key())
	assert.NoError(t, h.Extend(context.Background()))
	assert.NoError(t, h.Unlock(context.Background()))
}

func TestJobOptions(t *testing.T) {
	o := defaultJobOptions()
	WithLockTTL(time.Second)(o)
	assert.Equal(t, MinLockTTL, o.lockTTL)
	WithLockTTL(0)(o)
	assert.Equal(t, MinLockTTL, o.lockTTL)
	WithTimeout(-1)(o)
	assert.Zero(t, o.timeout)
}
