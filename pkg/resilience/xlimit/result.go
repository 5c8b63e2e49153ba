package xlimit

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

// Result 突发限流检查结果
type Result struct {
	// Allowed 是否允许请求通过
	Allowed bool

	// Limit 桶容量；降级放行时为 0
	Limit int

	// Remaining 桶内剩余令牌
	Remaining int

	// ResetAt 桶回满的时间
	ResetAt time.Time

	// RetryAfter 建议重试等待时间（仅在 Allowed=false 时有意义）
	RetryAfter time.Duration

	// Backend 给出结果的后端："redis"、"local" 或降级策略名
	Backend string
}

// RetryAfterSeconds 向上取整的重试秒数，被拒绝时至少为 1
//
// 设计决策: 向上取整，避免亚秒级等待被截断为 0，导致客户端立即重试并放大瞬时流量。
func (r *Result) RetryAfterSeconds() int64 {
	if r.Allowed {
		return 0
	}
	return max(int64(math.Ceil(r.RetryAfter.Seconds())), 1)
}

// Headers 返回标准限流响应头
// - X-RateLimit-Limit: 桶容量
// - X-RateLimit-Remaining: 剩余令牌
// - X-RateLimit-Reset: 回满时间（Unix 时间戳）
// - Retry-After: 重试等待秒数（仅在被限流时）
func (r *Result) Headers() map[string]string {
	headers := map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(r.Limit),
		"X-RateLimit-Remaining": strconv.Itoa(r.Remaining),
		"X-RateLimit-Reset":     strconv.FormatInt(r.ResetAt.Unix(), 10),
	}
	if !r.Allowed {
		headers["Retry-After"] = strconv.FormatInt(r.RetryAfterSeconds(), 10)
	}
	return headers
}

// SetHeaders 将限流响应头写入 http.ResponseWriter
//
// 设计决策: 当 Limit <= 0 时跳过写入配额头。
// Limit=0 表示无有效配额信息（如 FallbackOpen），
// 写入 X-RateLimit-Limit: 0 会误导客户端认为配额为零。
func (r *Result) SetHeaders(w http.ResponseWriter) {
	if r.Limit <= 0 {
		return
	}
	for key, value := range r.Headers() {
		w.Header().Set(key, value)
	}
}
