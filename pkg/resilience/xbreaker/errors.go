package xbreaker

import (
	"errors"
	"fmt"

	"github.com/sony/gobreaker/v2"
)

// BreakerError 熔断器拦截错误
//
// Retryable() 返回 false：熔断器打开说明下游不可用，重试没有意义。
type BreakerError struct {
	Err   error
	Name  string
	State State
}

func (e *BreakerError) Error() string {
	return fmt.Sprintf("xbreaker: %s: %v", e.Name, e.Err)
}

func (e *BreakerError) Unwrap() error {
	return e.Err
}

// Retryable 总是返回 false
func (e *BreakerError) Retryable() bool {
	return false
}

// wrapBreakerError 只包装 gobreaker 直接返回的 sentinel，
// 嵌套熔断器时内层的错误不会被归因到外层。
//
// 设计决策: 状态从错误推导而不是再查询 State()，避免 Execute 返回后状态已变化。
func wrapBreakerError(err error, name string) error {
	var be *BreakerError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &be):
		return err
	case err == gobreaker.ErrOpenState: //nolint:errorlint // 只匹配直接返回值
		return &BreakerError{Err: err, Name: name, State: StateOpen}
	case err == gobreaker.ErrTooManyRequests: //nolint:errorlint // 只匹配直接返回值
		return &BreakerError{Err: err, Name: name, State: StateHalfOpen}
	default:
		return err
	}
}

// IsBreakerError 检查错误是否由熔断器拦截产生
func IsBreakerError(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
