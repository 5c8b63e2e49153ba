package xbreaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Config 熔断器配置
type Config struct {
	// FailureThreshold 连续失败多少次后熔断，默认 5
	FailureThreshold uint32 `koanf:"failure_threshold"`
	// OpenTimeout 熔断后多久进入半开探测，默认 30s
	OpenTimeout time.Duration `koanf:"open_timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{FailureThreshold: 5, OpenTimeout: 30 * time.Second}
}

// Option 熔断器配置选项
type Option func(*Breaker)

// WithTripPolicy 设置熔断判定策略，默认连续失败 5 次
func WithTripPolicy(p TripPolicy) Option {
	return func(b *Breaker) {
		if p != nil {
			b.tripPolicy = p
		}
	}
}

// WithTimeout 设置 Open 到 HalfOpen 的等待时间，默认 60s
func WithTimeout(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithMaxRequests 设置 HalfOpen 状态允许的探测请求数，默认 1
func WithMaxRequests(n uint32) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.maxRequests = n
		}
	}
}

// WithSuccessPolicy 自定义成功判定
//
// 例如调用方取消导致的 context.Canceled 不应计为下游失败。
func WithSuccessPolicy(f func(err error) bool) Option {
	return func(b *Breaker) {
		b.isSuccessful = f
	}
}

// WithOnStateChange 状态变化回调，用于日志与告警
func WithOnStateChange(f func(name string, from, to State)) Option {
	return func(b *Breaker) {
		b.onStateChange = f
	}
}

// FromConfig 将 Config 转换为选项
func FromConfig(cfg Config) []Option {
	return []Option{
		WithTripPolicy(NewConsecutiveFailures(cfg.FailureThreshold)),
		WithTimeout(cfg.OpenTimeout),
	}
}

// Breaker 熔断器
type Breaker struct {
	name          string
	tripPolicy    TripPolicy
	timeout       time.Duration
	maxRequests   uint32
	isSuccessful  func(err error) bool
	onStateChange func(name string, from, to State)

	cb *gobreaker.CircuitBreaker[any]
}

// NewBreaker 创建熔断器，name 用于日志与错误信息
func NewBreaker(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:        name,
		tripPolicy:  NewConsecutiveFailures(5),
		timeout:     60 * time.Second,
		maxRequests: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	st := gobreaker.Settings{
		Name:        b.name,
		MaxRequests: b.maxRequests,
		Timeout:     b.timeout,
		ReadyToTrip: b.tripPolicy.ReadyToTrip,
	}
	if b.isSuccessful != nil {
		st.IsSuccessful = b.isSuccessful
	}
	if b.onStateChange != nil {
		st.OnStateChange = b.onStateChange
	}
	b.cb = gobreaker.NewCircuitBreaker[any](st)
	return b
}

// Do 执行受熔断器保护的操作
//
// ctx 仅用于入口检查；熔断拦截时 fn 不会执行，返回 *BreakerError。
func (b *Breaker) Do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return wrapBreakerError(err, b.name)
}

// Execute 执行受熔断器保护的操作（泛型版本）
func Execute[T any](ctx context.Context, b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	result, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return zero, wrapBreakerError(err, b.name)
	}
	typed, _ := result.(T)
	return typed, nil
}

// State 返回当前状态
func (b *Breaker) State() State {
	return b.cb.State()
}

// Name 返回熔断器名称
func (b *Breaker) Name() string {
	return b.name
}
