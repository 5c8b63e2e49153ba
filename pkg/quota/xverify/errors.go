package xverify

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("xverify: invalid config")

	// ErrProvider 验证服务故障，所有 Verify 返回的错误都包装它
	ErrProvider = errors.New("xverify: provider unavailable")
)

// ProviderError 一次 siteverify 请求失败
type ProviderError struct {
	// StatusCode HTTP 状态码，传输错误时为 0
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("xverify: siteverify status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("xverify: siteverify: %v", e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable 传输错误、429 与 5xx 可重试
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == 0 ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}
