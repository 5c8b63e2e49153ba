package xretry

import "errors"

var (
	// ErrNilFunc 传入的操作函数为 nil
	ErrNilFunc = errors.New("xretry: function cannot be nil")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("xretry: invalid config")
)

// RetryableError 可重试错误接口
type RetryableError interface {
	error
	Retryable() bool
}

// PermanentError 永久性错误（不应重试）
type PermanentError struct {
	Err error
}

// Permanent 将错误标记为不可重试，err 为 nil 时返回 nil
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Retryable 总是返回 false
func (e *PermanentError) Retryable() bool {
	return false
}

// IsRetryable 检查错误是否可重试
//
//   - nil：不需要重试
//   - 实现 RetryableError：由 Retryable() 决定
//   - 其他错误：视为可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return true
}
