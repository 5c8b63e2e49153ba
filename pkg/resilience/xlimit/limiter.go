package xlimit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xquota/pkg/observability/xlog"
)

// Limiter 突发限流器，可并发使用
type Limiter struct {
	cfg      Config
	rate     rate
	primary  backend
	fallback backend // 仅 FallbackLocal 时非 nil
	opts     *options
	metrics  *Metrics
}

// New 创建基于 Redis 的限流器
//
// Fallback 为 FallbackLocal 时同时创建本地后端，Redis 出错时改用它。
func New(rdb redis.UniversalClient, cfg Config, opts ...Option) (*Limiter, error) {
	if rdb == nil {
		return nil, ErrNilClient
	}
	l, err := newLimiter(cfg, opts)
	if err != nil {
		return nil, err
	}
	l.primary = newRedisBackend(rdb)
	if cfg.Fallback == FallbackLocal {
		local, err := newLocalBackend(cfg.LocalSize, l.rate, l.opts.now)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		l.fallback = local
	}
	return l, nil
}

// NewLocal 创建进程内限流器，用于没有 Redis 的单实例部署
func NewLocal(cfg Config, opts ...Option) (*Limiter, error) {
	l, err := newLimiter(cfg, opts)
	if err != nil {
		return nil, err
	}
	local, err := newLocalBackend(cfg.LocalSize, l.rate, l.opts.now)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	l.primary = local
	return l, nil
}

func newLimiter(cfg Config, opts []Option) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	metrics, err := NewMetrics(o.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("xlimit: create metrics: %w", err)
	}
	return &Limiter{
		cfg:     cfg,
		rate:    rate{Rate: cfg.Rate, Burst: cfg.Burst, Period: cfg.Period},
		opts:    o,
		metrics: metrics,
	}, nil
}

// Enabled 返回配置中的开关
func (l *Limiter) Enabled() bool {
	return l.cfg.Enabled
}

// Allow 为 key 取一个令牌
//
// 返回契约：
//   - err == nil 时 *Result 必非 nil
//   - Redis 出错且策略为 FallbackClose 时返回 Allowed=false 的结果与 ErrRedisUnavailable
//   - 调用方 ctx 已结束时返回 ctx.Err()，不触发降级
func (l *Limiter) Allow(ctx context.Context, key string) (*Result, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	start := l.opts.now()

	res, err := l.primary.allow(ctx, l.cfg.KeyPrefix+key, l.rate)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return l.degrade(ctx, key, err)
	}

	result := l.result(res, l.primary.kind())
	l.metrics.RecordAllow(ctx, result.Backend, result.Allowed, l.opts.now().Sub(start))
	return result, nil
}

// degrade 按降级策略处理 Redis 错误
func (l *Limiter) degrade(ctx context.Context, key string, cause error) (*Result, error) {
	strategy := l.cfg.Fallback
	l.metrics.RecordFallback(ctx, strategy)
	l.opts.logger.Warn(ctx, "burst limiter backend failure",
		xlog.Component("xlimit"),
		xlog.Err(cause),
		slog.String("strategy", string(strategy)),
	)

	switch strategy {
	case FallbackOpen:
		return &Result{Allowed: true, Backend: string(FallbackOpen)}, nil
	case FallbackLocal:
		if l.fallback != nil {
			res, err := l.fallback.allow(ctx, l.cfg.KeyPrefix+key, l.rate)
			if err != nil {
				return nil, err
			}
			return l.result(res, l.fallback.kind()), nil
		}
	}
	return &Result{Allowed: false, Backend: string(FallbackClose)},
		fmt.Errorf("%w: %w", ErrRedisUnavailable, cause)
}

func (l *Limiter) result(res checkResult, kind string) *Result {
	return &Result{
		Allowed:    res.Allowed,
		Limit:      l.rate.Burst,
		Remaining:  res.Remaining,
		ResetAt:    l.opts.now().Add(res.ResetAfter),
		RetryAfter: res.RetryAfter,
		Backend:    kind,
	}
}

// Reset 清空 key 的桶
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if err := l.primary.reset(ctx, l.cfg.KeyPrefix+key); err != nil {
		return err
	}
	if l.fallback != nil {
		return l.fallback.reset(ctx, l.cfg.KeyPrefix+key)
	}
	return nil
}

// Close 释放本地后端，不关闭注入的 Redis 客户端
func (l *Limiter) Close() {
	l.primary.close()
	if l.fallback != nil {
		l.fallback.close()
	}
}
