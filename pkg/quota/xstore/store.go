package xstore

import (
	"context"
	"errors"
	"time"
)

//go:generate mockgen -source=store.go -destination=xstoremock/store.go -package=xstoremock

// Store 配额存储的最小契约
//
// 所有方法必须是并发安全的，且每个操作在存储端是原子的。
// 计数器不存在时 Get 返回 found=false，而非错误。
type Store interface {
	// Get 读取计数器，键不存在时 found 为 false
	Get(ctx context.Context, key string) (value int64, found bool, err error)

	// Incr 原子递增并返回递增后的值
	Incr(ctx context.Context, key string) (int64, error)

	// Expire 设置键的存活时间，键不存在时返回 false
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// SAdd 向集合添加成员，返回新加入的成员数（重复添加返回 0）
	SAdd(ctx context.Context, key, member string) (int64, error)

	// SCard 返回集合基数，键不存在时为 0
	SCard(ctx context.Context, key string) (int64, error)

	// Ping 检查存储可达性
	Ping(ctx context.Context) error

	// Close 释放存储持有的资源
	Close() error
}

// Reserver 原子的"先递增再比较"能力
//
// Reserve 递增 key 并与 limit 比较：
//   - 递增后的值不超过 limit 时，返回 (used, true)
//   - 超过 limit 时回滚本次递增，返回 (回滚后的值, false)
//
// 无论成功与否都会重新设置 ttl。
type Reserver interface {
	Reserve(ctx context.Context, key string, limit int64, ttl time.Duration) (used int64, ok bool, err error)
}

// MemberTracker 集合写入、刷新 TTL、读取基数在同一事务内完成
type MemberTracker interface {
	TrackMember(ctx context.Context, key, member string, ttl time.Duration) (added, card int64, err error)
}

// WindowTracker 带时间戳的滚动窗口集合
//
// 每个成员记录最近一次出现的时间，早于 now-window 的成员被单独裁剪，
// 而不是整个集合一起过期。
type WindowTracker interface {
	TrackWindow(ctx context.Context, key, member string, now time.Time, window time.Duration) (added, card int64, err error)
	CountWindow(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error)
}

// =============================================================================
// 基于最小契约的组合操作
// =============================================================================

// Increment 递增计数器并刷新 TTL
//
// 递增与设置过期是两次独立调用。过期设置失败时返回递增后的值和
// [ErrExpireNotSet]，计数本身已经生效，由过期巡检兜底。
func Increment(ctx context.Context, s Store, key string, ttl time.Duration) (int64, error) {
	value, err := s.Incr(ctx, key)
	if err != nil {
		return 0, err
	}
	if _, err := s.Expire(ctx, key, ttl); err != nil {
		return value, errors.Join(ErrExpireNotSet, err)
	}
	return value, nil
}

// Reserve 在配额内原子地占用一次计数
//
// 存储实现了 [Reserver] 时直接使用其原子操作，超额请求不会留下任何计数变更。
// 否则退化为 Incr 后比较：超出部分被忽略，返回的 used 截断为 limit。
func Reserve(ctx context.Context, s Store, key string, limit int64, ttl time.Duration) (used int64, ok bool, err error) {
	if limit < 0 {
		return 0, false, ErrInvalidLimit
	}
	if r, isReserver := s.(Reserver); isReserver {
		return r.Reserve(ctx, key, limit, ttl)
	}

	value, err := Increment(ctx, s, key, ttl)
	if err != nil && !errors.Is(err, ErrExpireNotSet) {
		return 0, false, err
	}
	if value > limit {
		return limit, false, err
	}
	return value, true, err
}

// TrackMember 添加集合成员、刷新 TTL 并读取基数
//
// 存储实现了 [MemberTracker] 时在一个事务内完成，否则依次调用 SAdd、Expire、SCard。
// 两种方式都保证写入在读取基数之前完成。
func TrackMember(ctx context.Context, s Store, key, member string, ttl time.Duration) (added, card int64, err error) {
	if t, ok := s.(MemberTracker); ok {
		return t.TrackMember(ctx, key, member, ttl)
	}

	added, err = s.SAdd(ctx, key, member)
	if err != nil {
		return 0, 0, err
	}
	var expireErr error
	if _, err := s.Expire(ctx, key, ttl); err != nil {
		expireErr = errors.Join(ErrExpireNotSet, err)
	}
	card, err = s.SCard(ctx, key)
	if err != nil {
		return 0, 0, err
	}
	return added, card, expireErr
}
