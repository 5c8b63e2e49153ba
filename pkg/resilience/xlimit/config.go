package xlimit

import (
	"fmt"
	"time"
)

// FallbackStrategy Redis 不可用时的处理方式
type FallbackStrategy string

const (
	// FallbackClose 拒绝请求
	FallbackClose FallbackStrategy = "close"

	// FallbackOpen 放行请求
	FallbackOpen FallbackStrategy = "open"

	// FallbackLocal 改用本地令牌桶
	FallbackLocal FallbackStrategy = "local"
)

// IsValid 检查降级策略是否有效
func (s FallbackStrategy) IsValid() bool {
	switch s {
	case FallbackClose, FallbackOpen, FallbackLocal:
		return true
	default:
		return false
	}
}

// 默认值
const (
	DefaultRate      = 20
	DefaultBurst     = 10
	DefaultPeriod    = time.Minute
	DefaultKeyPrefix = "xquota:burst:"

	// DefaultLocalSize 本地后端最多保留的桶数
	DefaultLocalSize = 100_000
)

// Config 突发限流配置
type Config struct {
	// Enabled 为 false 时中间件直接放行
	Enabled bool `koanf:"enabled"`

	// Rate 每个 Period 内允许的请求数
	Rate int `koanf:"rate"`

	// Burst 桶容量，允许的瞬时并发
	Burst int `koanf:"burst"`

	// Period 速率周期
	Period time.Duration `koanf:"period"`

	// KeyPrefix Redis 键前缀
	KeyPrefix string `koanf:"key_prefix"`

	// Fallback Redis 不可用时的策略
	Fallback FallbackStrategy `koanf:"fallback"`

	// LocalSize 本地后端的桶数上限
	LocalSize int `koanf:"local_size"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Rate:      DefaultRate,
		Burst:     DefaultBurst,
		Period:    DefaultPeriod,
		KeyPrefix: DefaultKeyPrefix,
		Fallback:  FallbackClose,
		LocalSize: DefaultLocalSize,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.Rate <= 0 {
		return fmt.Errorf("%w: rate must be positive", ErrInvalidConfig)
	}
	if c.Burst <= 0 {
		return fmt.Errorf("%w: burst must be positive", ErrInvalidConfig)
	}
	if c.Period <= 0 {
		return fmt.Errorf("%w: period must be positive", ErrInvalidConfig)
	}
	if !c.Fallback.IsValid() {
		return fmt.Errorf("%w: invalid fallback strategy %q", ErrInvalidConfig, c.Fallback)
	}
	if c.LocalSize <= 0 {
		return fmt.Errorf("%w: local_size must be positive", ErrInvalidConfig)
	}
	return nil
}
