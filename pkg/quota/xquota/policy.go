package xquota

import (
	"errors"
	"fmt"
	"time"

	"github.com/omeyang/xquota/pkg/quota/xassoc"
	"github.com/omeyang/xquota/pkg/quota/xcollision"
)

// Strategy 冲突处理策略
type Strategy string

const (
	// StrategyStrictBlock 任何冲突直接拦截
	StrategyStrictBlock Strategy = "strict-block"
	// StrategyAdaptiveCombined 指纹冲突时改用组合计数器
	StrategyAdaptiveCombined Strategy = "adaptive-combined"
)

// Reason 拦截原因
type Reason string

const (
	ReasonNone                 Reason = "none"
	ReasonFingerprintCollision Reason = "fingerprint-collision"
	ReasonAddressCollision     Reason = "address-collision"
	ReasonDailyLimit           Reason = "daily-limit"
)

// Enforcement 执行配额的计数器
type Enforcement string

const (
	// EnforcementFingerprint 按指纹计数器执行
	EnforcementFingerprint Enforcement = "fingerprint-only"
	// EnforcementCombined 按指纹+地址组合计数器执行
	EnforcementCombined Enforcement = "combined"
)

// FailurePolicy 存储故障时的处理方式
type FailurePolicy string

const (
	// FailClose 拒绝请求
	FailClose FailurePolicy = "close"
	// FailOpen 放行并审计
	FailOpen FailurePolicy = "open"
)

// 默认值
const (
	DefaultDailyLimit   int64 = 3
	DefaultStoreTimeout       = 800 * time.Millisecond
)

// ErrInvalidPolicy 策略配置无效
var ErrInvalidPolicy = errors.New("xquota: invalid policy")

// Policy 判定策略，可热更新（见 [Engine.UpdatePolicy]）
type Policy struct {
	DailyLimit int64    `koanf:"daily_limit"`
	Strategy   Strategy `koanf:"strategy"`

	FingerprintThreshold int64 `koanf:"fingerprint_threshold"`
	AddressThreshold     int64 `koanf:"address_threshold"`

	Window        time.Duration    `koanf:"window"`
	WindowMode    xassoc.Mode      `koanf:"window_mode"`
	Direction     xassoc.Direction `koanf:"direction"`
	SelfInclusive bool             `koanf:"self_inclusive"`

	FailurePolicy FailurePolicy `koanf:"failure_policy"`
	// StoreTimeout 单次判定内全部存储访问的总时限，0 表示不额外限制
	StoreTimeout time.Duration `koanf:"store_timeout"`
}

// DefaultPolicy 返回默认策略
func DefaultPolicy() Policy {
	assoc := xassoc.DefaultConfig()
	det := xcollision.NewDetector()
	return Policy{
		DailyLimit:           DefaultDailyLimit,
		Strategy:             StrategyAdaptiveCombined,
		FingerprintThreshold: det.FingerprintThreshold,
		AddressThreshold:     det.AddressThreshold,
		Window:               assoc.Window,
		WindowMode:           assoc.Mode,
		Direction:            assoc.Direction,
		SelfInclusive:        assoc.SelfInclusive,
		FailurePolicy:        FailClose,
		StoreTimeout:         DefaultStoreTimeout,
	}
}

// Validate 校验策略
func (p Policy) Validate() error {
	if p.DailyLimit < 1 {
		return fmt.Errorf("%w: daily_limit must be at least 1, got %d", ErrInvalidPolicy, p.DailyLimit)
	}
	switch p.Strategy {
	case StrategyStrictBlock, StrategyAdaptiveCombined:
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidPolicy, p.Strategy)
	}
	switch p.FailurePolicy {
	case FailClose, FailOpen:
	default:
		return fmt.Errorf("%w: unknown failure_policy %q", ErrInvalidPolicy, p.FailurePolicy)
	}
	if p.StoreTimeout < 0 {
		return fmt.Errorf("%w: store_timeout must not be negative", ErrInvalidPolicy)
	}
	if err := p.detector().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}
	if err := p.assoc().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}
	return nil
}

func (p Policy) detector() xcollision.Detector {
	return xcollision.Detector{
		FingerprintThreshold: p.FingerprintThreshold,
		AddressThreshold:     p.AddressThreshold,
	}
}

func (p Policy) assoc() xassoc.Config {
	return xassoc.Config{
		Window:        p.Window,
		Mode:          p.WindowMode,
		Direction:     p.Direction,
		SelfInclusive: p.SelfInclusive,
	}
}
