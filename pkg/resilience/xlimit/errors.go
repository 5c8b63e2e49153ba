package xlimit

import "errors"

// 预定义错误，使用 errors.Is 进行比较
var (
	// ErrRedisUnavailable Redis 不可用且降级策略为 FallbackClose
	ErrRedisUnavailable = errors.New("xlimit: redis unavailable")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("xlimit: invalid config")

	// ErrNilClient Redis 客户端为 nil
	ErrNilClient = errors.New("xlimit: redis client is nil")

	// ErrInvalidKey 限流键为空
	ErrInvalidKey = errors.New("xlimit: invalid key")
)
