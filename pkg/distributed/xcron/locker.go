package xcron

import (
	"context"
	"errors"
	"time"
)

// LockHandle 表示一次成功的锁获取。
//
// 每次 TryLock 成功都会返回一个新的 handle，只有持有它的一方才能释放或续期。
type LockHandle interface {
	// Unlock 释放锁。返回 [ErrLockNotHeld] 表示锁已过期或被其他获取覆盖。
	Unlock(ctx context.Context) error

	// Extend 按获取时的 TTL 续期。
	Extend(ctx context.Context) error

	// Key 返回锁的完整 key，用于日志。
	Key() string
}

// Locker 分布式锁接口。
//
// 实现要求：
//   - TryLock 必须是非阻塞的
//   - 锁必须有 TTL，防止持有者崩溃后死锁
//   - 实现必须是并发安全的
type Locker interface {
	// TryLock 尝试获取锁。
	//
	// handle=nil 且 err=nil 表示锁被其他实例持有，这是正常情况；
	// err 非 nil 表示锁服务异常。
	TryLock(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

// ErrLockNotHeld 表示尝试操作未持有的锁。
var ErrLockNotHeld = errors.New("xcron: lock not held by this instance")
