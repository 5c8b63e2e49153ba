package xcron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// DefaultLockPrefix 锁 key 的默认前缀
const DefaultLockPrefix = "xcron:lock:"

// RedisLocker 基于 redsync 的 Redis 分布式锁。
//
// 单次尝试、不重试：抢不到锁说明本次触发已由其他副本执行。
type RedisLocker struct {
	rs     *redsync.Redsync
	prefix string
}

// RedisLockerOption RedisLocker 配置选项
type RedisLockerOption func(*RedisLocker)

// WithRedisKeyPrefix 设置锁 key 前缀，默认 [DefaultLockPrefix]
func WithRedisKeyPrefix(prefix string) RedisLockerOption {
	return func(l *RedisLocker) {
		l.prefix = prefix
	}
}

// NewRedisLocker 创建基于 Redis 的分布式锁。
//
// client 为 nil 时 panic：这是装配错误，不应延迟到第一次触发才暴露。
func NewRedisLocker(client redis.UniversalClient, opts ...RedisLockerOption) *RedisLocker {
	if client == nil {
		panic("xcron: redis client cannot be nil")
	}
	l := &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		prefix: DefaultLockPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TryLock 尝试获取锁（非阻塞）
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (LockHandle, error) {
	fullKey := l.prefix + key
	mutex := l.rs.NewMutex(fullKey, redsync.WithExpiry(ttl), redsync.WithTries(1))

	if err := mutex.TryLockContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var taken *redsync.ErrTaken
		if errors.As(err, &taken) || errors.Is(err, redsync.ErrFailed) {
			return nil, nil
		}
		return nil, fmt.Errorf("xcron: acquire lock %s: %w", fullKey, err)
	}
	return &redisLockHandle{mutex: mutex, key: fullKey}, nil
}

type redisLockHandle struct {
	mutex *redsync.Mutex
	key   string
}

func (h *redisLockHandle) Unlock(ctx context.Context) error {
	ok, err := h.mutex.UnlockContext(ctx)
	return lockResult(ok, err)
}

func (h *redisLockHandle) Extend(ctx context.Context) error {
	ok, err := h.mutex.ExtendContext(ctx)
	return lockResult(ok, err)
}

func (h *redisLockHandle) Key() string {
	return h.key
}

func lockResult(ok bool, err error) error {
	if err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrLockAlreadyExpired) || errors.As(err, &taken) {
			return ErrLockNotHeld
		}
		return err
	}
	if !ok {
		return ErrLockNotHeld
	}
	return nil
}

var (
	_ Locker     = (*RedisLocker)(nil)
	_ LockHandle = (*redisLockHandle)(nil)
)
