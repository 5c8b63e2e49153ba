package xlimit

import (
	"context"
	"time"
)

// rate 单个桶的速率参数
type rate struct {
	Rate   int
	Burst  int
	Period time.Duration
}

// perToken 生成一个令牌的间隔
func (r rate) perToken() time.Duration {
	return r.Period / time.Duration(r.Rate)
}

// checkResult 后端检查结果
type checkResult struct {
	Allowed    bool
	Remaining  int
	ResetAfter time.Duration
	RetryAfter time.Duration
}

// backend 限流后端
//
// 职责单一：只负责底层的桶操作，日志、指标与降级由 Limiter 处理。
// 实现必须并发安全。
type backend interface {
	allow(ctx context.Context, key string, r rate) (checkResult, error)
	reset(ctx context.Context, key string) error
	close()
	kind() string
}
