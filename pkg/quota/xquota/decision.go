package xquota

import (
	"math"
	"time"

	"github.com/omeyang/xquota/pkg/quota/xcollision"
)

// Usage 三个当日计数器的取值
type Usage struct {
	Fingerprint int64
	Address     int64
	Pair        int64
}

// Decision 一次判定的结果
type Decision struct {
	Allowed     bool
	Reason      Reason
	Enforcement Enforcement
	Strategy    Strategy

	// Limit 每日配额
	Limit int64
	// UsedToday 执行计数器的当日用量
	UsedToday int64
	// Remaining 拦截时为 0
	Remaining int64
	// ResetAt 下一个本地零点
	ResetAt time.Time

	Collision xcollision.Result
	Usage     Usage

	Fingerprint string
	Address     string

	// Degraded 存储故障后按 fail-open 放行，计数未生效
	Degraded bool
}

// RetryAfter 返回客户端应等待的时长，放行时为 0
//
// 向上取整到秒且至少 1 秒。
func (d *Decision) RetryAfter(now time.Time) time.Duration {
	if d == nil || d.Allowed {
		return 0
	}
	wait := d.ResetAt.Sub(now)
	secs := math.Ceil(wait.Seconds())
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}
