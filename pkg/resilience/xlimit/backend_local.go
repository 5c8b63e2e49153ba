package xlimit

import (
	"context"
	"time"

	xrate "golang.org/x/time/rate"

	"github.com/omeyang/xquota/pkg/util/xlru"
)

// localBackend 进程内令牌桶
//
// 每个 key 一个 [xrate.Limiter]，放在带 TTL 的 LRU 中。TTL 取桶从空到满的时间：
// 空闲这么久的桶已经回满，淘汰后重建等价。每次取令牌都会刷新 TTL。
type localBackend struct {
	buckets *xlru.Cache[string, *xrate.Limiter]
	now     func() time.Time
}

func newLocalBackend(size int, r rate, now func() time.Time) (*localBackend, error) {
	refill := time.Duration(r.Burst) * r.perToken()
	buckets, err := xlru.New[string, *xrate.Limiter](xlru.Config{Size: size, TTL: max(refill, r.Period)})
	if err != nil {
		return nil, err
	}
	return &localBackend{buckets: buckets, now: now}, nil
}

func (b *localBackend) kind() string { return "local" }

func (b *localBackend) allow(ctx context.Context, key string, r rate) (checkResult, error) {
	if err := ctx.Err(); err != nil {
		return checkResult{}, err
	}
	lim := b.limiter(key, r)
	now := b.now()
	defer b.buckets.Set(key, lim)

	if lim.AllowN(now, 1) {
		tokens := max(lim.TokensAt(now), 0)
		return checkResult{
			Allowed:    true,
			Remaining:  int(tokens),
			ResetAfter: fullAfter(tokens, r),
		}, nil
	}

	// 只为计算等待时间而预约，随即取消，拒绝不消耗令牌
	res := lim.ReserveN(now, 1)
	retry := res.DelayFrom(now)
	res.CancelAt(now)
	return checkResult{
		ResetAfter: fullAfter(max(lim.TokensAt(now), 0), r),
		RetryAfter: retry,
	}, nil
}

func (b *localBackend) reset(_ context.Context, key string) error {
	b.buckets.Delete(key)
	return nil
}

func (b *localBackend) close() { b.buckets.Close() }

func (b *localBackend) limiter(key string, r rate) *xrate.Limiter {
	if lim, ok := b.buckets.Get(key); ok {
		return lim
	}
	lim := xrate.NewLimiter(xrate.Every(r.perToken()), r.Burst)
	if b.buckets.SetIfAbsent(key, lim) {
		return lim
	}
	// 并发创建时以已写入的桶为准
	if existing, ok := b.buckets.Get(key); ok {
		return existing
	}
	return lim
}

// fullAfter 桶回满所需时间
func fullAfter(tokens float64, r rate) time.Duration {
	return time.Duration((float64(r.Burst) - tokens) * float64(r.perToken()))
}

var _ backend = (*localBackend)(nil)
