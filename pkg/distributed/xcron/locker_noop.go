package xcron

import (
	"context"
	"time"
)

type noopLocker struct{}

type noopLockHandle struct {
	key string
}

// NoopLocker 返回无锁实现，用于单副本部署。不设置 locker 时默认使用它。
func NoopLocker() Locker {
	return noopLocker{}
}

func (noopLocker) TryLock(_ context.Context, key string, _ time.Duration) (LockHandle, error) {
	return noopLockHandle{key: key}, nil
}

func (noopLockHandle) Unlock(context.Context) error { return nil }

func (noopLockHandle) Extend(context.Context) error { return nil }

func (h noopLockHandle) Key() string { return h.key }
