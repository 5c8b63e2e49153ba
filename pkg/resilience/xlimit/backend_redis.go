package xlimit

import (
	"context"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// redisBackend 基于 redis_rate（GCRA）的分布式后端
type redisBackend struct {
	limiter *redis_rate.Limiter
}

func newRedisBackend(rdb redis.UniversalClient) *redisBackend {
	return &redisBackend{limiter: redis_rate.NewLimiter(rdb)}
}

func (b *redisBackend) kind() string { return "redis" }

func (b *redisBackend) allow(ctx context.Context, key string, r rate) (checkResult, error) {
	res, err := b.limiter.Allow(ctx, key, redis_rate.Limit{Rate: r.Rate, Burst: r.Burst, Period: r.Period})
	if err != nil {
		return checkResult{}, err
	}
	return checkResult{
		Allowed:    res.Allowed > 0,
		Remaining:  res.Remaining,
		ResetAfter: res.ResetAfter,
		RetryAfter: res.RetryAfter,
	}, nil
}

func (b *redisBackend) reset(ctx context.Context, key string) error {
	return b.limiter.Reset(ctx, key)
}

// close 不关闭注入的客户端
func (b *redisBackend) close() {}

var _ backend = (*redisBackend)(nil)
