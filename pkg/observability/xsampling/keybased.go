package xsampling

import (
	"context"
	"math"

	"github.com/cespare/xxhash/v2"
)

// KeyFunc 从上下文中提取采样 key
//
// 返回空字符串时 KeyBasedSampler 回退到随机采样。
type KeyFunc func(ctx context.Context) string

// KeyBasedSampler 基于 key 的一致性采样策略
//
// 相同的 key 在相同的 rate 下总是产生相同的采样决策，跨进程一致。
type KeyBasedSampler struct {
	rate    float64
	keyFunc KeyFunc
}

// NewKeyBasedSampler 创建基于 key 的一致性采样器
func NewKeyBasedSampler(rate float64, keyFunc KeyFunc) (*KeyBasedSampler, error) {
	if err := validateRate(rate); err != nil {
		return nil, err
	}
	if keyFunc == nil {
		return nil, ErrNilKeyFunc
	}
	return &KeyBasedSampler{rate: rate, keyFunc: keyFunc}, nil
}

// ShouldSample 实现 Sampler
func (s *KeyBasedSampler) ShouldSample(ctx context.Context) bool {
	switch {
	case s.rate <= 0:
		return false
	case s.rate >= 1:
		return true
	}

	var key string
	if ctx != nil {
		key = s.keyFunc(ctx)
	}
	if key == "" {
		return randomFloat64() < s.rate
	}

	// 设计决策: 用完整 uint64 值域归一化；rate < 1 时 normalized == 1.0 不会通过比较。
	normalized := float64(xxhash.Sum64String(key)) / float64(math.MaxUint64)
	return normalized < s.rate
}

// Rate 返回采样比率
func (s *KeyBasedSampler) Rate() float64 {
	return s.rate
}

var _ Sampler = (*KeyBasedSampler)(nil)
