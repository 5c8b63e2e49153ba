package xretry

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"time"
)

// Backoff 计算第 attempt 次失败后的等待时间（attempt 从 1 开始）
type Backoff interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff 指数退避
//
// delay = min(initial * 2^(attempt-1) * (1 ± jitter), max)
type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  float64
}

// NextDelay 实现 Backoff
func (b ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(b.Initial) * math.Pow(2, float64(attempt-1))
	if b.Jitter > 0 {
		delay *= 1.0 + (randomFloat64()*2-1)*min(b.Jitter, 1)
	}
	// 溢出为 +Inf 后与 0 相乘会得到 NaN，NaN 的比较恒为 false。
	if math.IsNaN(delay) || delay < 0 || delay >= float64(b.Max) {
		return b.Max
	}
	return time.Duration(delay)
}

// NoBackoff 不等待，测试使用
type NoBackoff struct{}

// NextDelay 总是返回 0
func (NoBackoff) NextDelay(int) time.Duration { return 0 }

const floatScale = 1.0 / (1 << 53)

func randomFloat64() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	return float64(binary.LittleEndian.Uint64(buf[:])>>11) * floatScale
}
