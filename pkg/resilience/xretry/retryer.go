package xretry

import (
	"context"
	"fmt"
	"time"

	retry "github.com/avast/retry-go/v5"
)

// Config 重试配置
type Config struct {
	// Attempts 最大尝试次数（含首次），默认 3
	Attempts int `koanf:"attempts"`
	// InitialDelay 首次重试前的等待，默认 100ms
	InitialDelay time.Duration `koanf:"initial_delay"`
	// MaxDelay 单次等待上限，默认 2s
	MaxDelay time.Duration `koanf:"max_delay"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{Attempts: 3, InitialDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}
}

// Validate 校验配置
func (c Config) Validate() error {
	if c.Attempts < 1 {
		return fmt.Errorf("%w: attempts must be >= 1", ErrInvalidConfig)
	}
	if c.InitialDelay < 0 || c.MaxDelay < 0 {
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Option Retryer 选项
type Option func(*Retryer)

// WithBackoff 替换退避策略
func WithBackoff(b Backoff) Option {
	return func(r *Retryer) {
		if b != nil {
			r.backoff = b
		}
	}
}

// WithOnRetry 每次失败且将要重试时回调，attempt 从 1 开始
func WithOnRetry(f func(attempt int, err error)) Option {
	return func(r *Retryer) {
		r.onRetry = f
	}
}

// Retryer 重试执行器，可并发使用
type Retryer struct {
	attempts uint
	backoff  Backoff
	onRetry  func(attempt int, err error)
}

// New 创建重试执行器，非法的配置项回落到默认值
func New(cfg Config, opts ...Option) *Retryer {
	def := DefaultConfig()
	if cfg.Attempts < 1 {
		cfg.Attempts = def.Attempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = max(def.MaxDelay, cfg.InitialDelay)
	}

	r := &Retryer{
		attempts: uint(cfg.Attempts),
		backoff:  ExponentialBackoff{Initial: cfg.InitialDelay, Max: cfg.MaxDelay, Jitter: 0.1},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Do 执行 fn，失败且可重试时按退避等待后重试
//
// ctx 取消时停止等待；只返回最后一次的错误。
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return ErrNilFunc
	}
	return retry.New(r.options(ctx)...).Do(func() error {
		return fn(ctx)
	})
}

// DoWithResult 与 Do 相同，但返回 fn 的结果
func DoWithResult[T any](ctx context.Context, r *Retryer, fn func(ctx context.Context) (T, error)) (T, error) {
	if fn == nil {
		var zero T
		return zero, ErrNilFunc
	}
	return retry.NewWithData[T](r.options(ctx)...).Do(func() (T, error) {
		return fn(ctx)
	})
}

func (r *Retryer) options(ctx context.Context) []retry.Option {
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(r.attempts),
		retry.RetryIf(func(err error) bool {
			return retry.IsRecoverable(err) && IsRetryable(err)
		}),
		retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
			return r.backoff.NextDelay(int(n))
		}),
		retry.LastErrorOnly(true),
	}
	if r.onRetry != nil {
		opts = append(opts, retry.OnRetry(func(n uint, err error) {
			r.onRetry(int(n)+1, err)
		}))
	}
	return opts
}
