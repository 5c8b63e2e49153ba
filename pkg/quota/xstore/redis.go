package xstore

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOption Redis 存储选项
type RedisOption func(*redisOptions)

type redisOptions struct {
	skipPing    bool
	closeClient bool
}

// WithoutPing 创建时不检查连通性
func WithoutPing() RedisOption {
	return func(o *redisOptions) {
		o.skipPing = true
	}
}

// WithCloseClient Close 时一并关闭底层客户端
//
// 默认不关闭，客户端生命周期由调用者管理。
func WithCloseClient() RedisOption {
	return func(o *redisOptions) {
		o.closeClient = true
	}
}

// Redis 基于 Redis 的配额存储
//
// 原子预留与滚动窗口由 Lua 脚本实现，集合追踪使用 MULTI 事务。
type Redis struct {
	client redis.UniversalClient
	opts   redisOptions
	closed atomic.Bool
}

var (
	_ Store         = (*Redis)(nil)
	_ Reserver      = (*Redis)(nil)
	_ MemberTracker = (*Redis)(nil)
	_ WindowTracker = (*Redis)(nil)
)

// NewRedis 创建 Redis 配额存储
//
// 默认在创建时执行 PING，连接不可用时直接返回错误。
func NewRedis(ctx context.Context, client redis.UniversalClient, opts ...RedisOption) (*Redis, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	r := &Redis{client: client}
	for _, opt := range opts {
		opt(&r.opts)
	}
	if !r.opts.skipPing {
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, wrapOp("ping", "", err)
		}
	}
	return r, nil
}

// Client 返回底层 Redis 客户端
func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

func (r *Redis) check(key string) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if key == "" {
		return ErrEmptyKey
	}
	return nil
}

// Get 读取计数器
func (r *Redis) Get(ctx context.Context, key string) (int64, bool, error) {
	if err := r.check(key); err != nil {
		return 0, false, err
	}
	v, err := r.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrapOp("get", key, err)
	}
	return v, true, nil
}

// Incr 原子递增
func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	if err := r.check(key); err != nil {
		return 0, err
	}
	v, err := r.client.Incr(ctx, key).Result()
	return v, wrapOp("incr", key, err)
}

// Expire 设置存活时间
func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := r.check(key); err != nil {
		return false, err
	}
	ok, err := r.client.PExpire(ctx, key, clampTTL(ttl)).Result()
	return ok, wrapOp("expire", key, err)
}

// SAdd 添加集合成员
func (r *Redis) SAdd(ctx context.Context, key, member string) (int64, error) {
	if err := r.check(key); err != nil {
		return 0, err
	}
	n, err := r.client.SAdd(ctx, key, member).Result()
	return n, wrapOp("sadd", key, err)
}

// SCard 返回集合基数
func (r *Redis) SCard(ctx context.Context, key string) (int64, error) {
	if err := r.check(key); err != nil {
		return 0, err
	}
	n, err := r.client.SCard(ctx, key).Result()
	return n, wrapOp("scard", key, err)
}

// Ping 检查连通性
func (r *Redis) Ping(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}
	return wrapOp("ping", "", r.client.Ping(ctx).Err())
}

// Close 关闭存储
func (r *Redis) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	if r.opts.closeClient {
		return r.client.Close()
	}
	return nil
}

// Reserve 通过 Lua 脚本原子地递增、比较并在超额时回滚
func (r *Redis) Reserve(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error) {
	if err := r.check(key); err != nil {
		return 0, false, err
	}
	if limit < 0 {
		return 0, false, ErrInvalidLimit
	}
	reply, err := getScripts().reserve.Run(ctx, r.client, []string{key},
		limit, clampTTL(ttl).Milliseconds()).Int64Slice()
	if err != nil {
		return 0, false, wrapOp("reserve", key, err)
	}
	used, ok, err := parsePair(reply)
	if err != nil {
		return 0, false, wrapOp("reserve", key, err)
	}
	return used, ok == 1, nil
}

// TrackMember 在 MULTI 事务内执行 SADD、PEXPIRE、SCARD
func (r *Redis) TrackMember(ctx context.Context, key, member string, ttl time.Duration) (int64, int64, error) {
	if err := r.check(key); err != nil {
		return 0, 0, err
	}
	var (
		added *redis.IntCmd
		card  *redis.IntCmd
	)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.SAdd(ctx, key, member)
		pipe.PExpire(ctx, key, clampTTL(ttl))
		card = pipe.SCard(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, wrapOp("track", key, err)
	}
	return added.Val(), card.Val(), nil
}

// TrackWindow 记录成员的最近出现时间并裁剪窗口外的成员
func (r *Redis) TrackWindow(ctx context.Context, key, member string, now time.Time, window time.Duration) (int64, int64, error) {
	if err := r.check(key); err != nil {
		return 0, 0, err
	}
	reply, err := getScripts().windowTrack.Run(ctx, r.client, []string{key},
		member, now.UnixMilli(), clampTTL(window).Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, wrapOp("track_window", key, err)
	}
	added, card, err := parsePair(reply)
	if err != nil {
		return 0, 0, wrapOp("track_window", key, err)
	}
	return added, card, nil
}

// CountWindow 统计窗口内的成员数，不修改集合
func (r *Redis) CountWindow(ctx context.Context, key string, now time.Time, window time.Duration) (int64, error) {
	if err := r.check(key); err != nil {
		return 0, err
	}
	minScore := "(" + strconv.FormatInt(now.Add(-clampTTL(window)).UnixMilli(), 10)
	n, err := r.client.ZCount(ctx, key, minScore, "+inf").Result()
	return n, wrapOp("count_window", key, err)
}

// clampTTL 保证 TTL 至少为 1 毫秒，避免 PEXPIRE 0 立即删除键
func clampTTL(ttl time.Duration) time.Duration {
	if ttl < time.Millisecond {
		return time.Millisecond
	}
	return ttl
}
