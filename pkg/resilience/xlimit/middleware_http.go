package xlimit

import (
	"net/http"
)

// HTTPMiddleware 创建 HTTP 突发限流中间件
//
// limiter 为 nil 或未启用时返回透传中间件。
//
// 示例:
//
//	r := chi.NewRouter()
//	r.Use(xguard.RequestID(resolver))
//	r.Use(xlimit.HTTPMiddleware(limiter))
func HTTPMiddleware(limiter *Limiter, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if limiter == nil || !limiter.Enabled() {
		return func(next http.Handler) http.Handler { return next }
	}

	mopts := defaultMiddlewareOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(mopts)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if mopts.SkipFunc != nil && mopts.SkipFunc(r) {
				next.ServeHTTP(w, r)
				return
			}
			key := mopts.KeyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if handled := handleHTTPLimit(w, r, limiter, mopts, key); handled {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// handleHTTPLimit 执行限流检查并处理结果。
// 返回 true 表示请求已被处理（拒绝），调用方应直接返回。
func handleHTTPLimit(w http.ResponseWriter, r *http.Request, limiter *Limiter, mopts *MiddlewareOptions, key string) bool {
	result, err := limiter.Allow(r.Context(), key)
	if err != nil {
		mopts.ErrorHandler(w, r, err)
		return true
	}

	if !result.Allowed {
		result.SetHeaders(w)
		mopts.DenyHandler(w, r, result)
		return true
	}

	if mopts.AlwaysHeaders {
		result.SetHeaders(w)
	}
	return false
}
