package xlimit

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/omeyang/xquota/pkg/context/xctx"
)

// 错误响应码
const (
	CodeBurstLimited     = "burst_limited"
	CodeStoreUnavailable = "store_unavailable"
)

// unknownAddress 与 xidentity.Unknown 一致
const unknownAddress = "unknown"

// MiddlewareOptions HTTP 中间件配置选项
type MiddlewareOptions struct {
	// KeyFunc 提取限流键，返回空串表示不限流
	KeyFunc func(r *http.Request) string

	// DenyHandler 被限流时调用
	DenyHandler func(w http.ResponseWriter, r *http.Request, result *Result)

	// ErrorHandler 限流器出错（含 FallbackClose）时调用
	ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

	// SkipFunc 返回 true 时跳过限流检查
	SkipFunc func(r *http.Request) bool

	// AlwaysHeaders 放行时也写入限流头
	//
	// 设计决策: 默认只在拒绝时写入。配额接口自己写 X-RateLimit-* 头描述每日配额，
	// 放行时再写突发桶的头会让客户端混淆两种限制。
	AlwaysHeaders bool
}

// MiddlewareOption 中间件选项函数
type MiddlewareOption func(*MiddlewareOptions)

func defaultMiddlewareOptions() *MiddlewareOptions {
	return &MiddlewareOptions{
		KeyFunc:      AddressKey,
		DenyHandler:  defaultDenyHandler,
		ErrorHandler: defaultErrorHandler,
	}
}

// AddressKey 默认键：context 中的客户端地址，缺失时取对端地址
func AddressKey(r *http.Request) string {
	addr := xctx.ClientAddress(r.Context())
	if addr == "" {
		addr = r.RemoteAddr
		if host, _, err := net.SplitHostPort(addr); err == nil {
			addr = host
		}
	}
	if addr == unknownAddress {
		return ""
	}
	return addr
}

type errorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retryAfterSeconds,omitempty"`
}

func defaultDenyHandler(w http.ResponseWriter, _ *http.Request, result *Result) {
	writeJSON(w, http.StatusTooManyRequests, errorBody{
		Error:      CodeBurstLimited,
		Message:    "too many requests in a short period",
		RetryAfter: result.RetryAfterSeconds(),
	})
}

func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, _ error) {
	writeJSON(w, http.StatusInternalServerError, errorBody{
		Error:   CodeStoreUnavailable,
		Message: "rate limit store is unavailable",
	})
}

// writeJSON 写入 JSON 响应体。
// 写入失败时不返回错误，因为此时连接可能已断开，无法进行补救。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WithKeyFunc 设置键提取函数
func WithKeyFunc(fn func(r *http.Request) string) MiddlewareOption {
	return func(opts *MiddlewareOptions) {
		if fn != nil {
			opts.KeyFunc = fn
		}
	}
}

// WithDenyHandler 设置自定义拒绝处理器
func WithDenyHandler(handler func(w http.ResponseWriter, r *http.Request, result *Result)) MiddlewareOption {
	return func(opts *MiddlewareOptions) {
		if handler != nil {
			opts.DenyHandler = handler
		}
	}
}

// WithErrorHandler 设置自定义错误处理器
func WithErrorHandler(handler func(w http.ResponseWriter, r *http.Request, err error)) MiddlewareOption {
	return func(opts *MiddlewareOptions) {
		if handler != nil {
			opts.ErrorHandler = handler
		}
	}
}

// WithSkipFunc 设置跳过函数
func WithSkipFunc(skipFunc func(r *http.Request) bool) MiddlewareOption {
	return func(opts *MiddlewareOptions) {
		opts.SkipFunc = skipFunc
	}
}

// WithAlwaysHeaders 放行时也写入限流头
func WithAlwaysHeaders(enable bool) MiddlewareOption {
	return func(opts *MiddlewareOptions) {
		opts.AlwaysHeaders = enable
	}
}
