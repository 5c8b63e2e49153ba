package xquota

import "github.com/omeyang/xquota/pkg/quota/xcollision"

// verdict 纯判定结果，尚未占用配额
type verdict struct {
	allowed     bool
	reason      Reason
	enforcement Enforcement
	used        int64
}

// evaluate 根据策略、冲突和当前用量给出判定
//
// 优先级：地址冲突 > 指纹冲突 > 配额耗尽。
func evaluate(p Policy, c xcollision.Result, u Usage) verdict {
	v := verdict{enforcement: EnforcementFingerprint, used: u.Fingerprint}

	if c.Fingerprint.Detected && p.Strategy == StrategyAdaptiveCombined {
		v.enforcement = EnforcementCombined
		v.used = u.Pair
	}

	switch {
	case c.Address.Detected:
		v.reason = ReasonAddressCollision
	case c.Fingerprint.Detected && p.Strategy == StrategyStrictBlock:
		v.reason = ReasonFingerprintCollision
	case v.used >= p.DailyLimit:
		v.reason = ReasonDailyLimit
	default:
		v.allowed = true
		v.reason = ReasonNone
	}
	return v
}

func remaining(limit, used int64) int64 {
	if used >= limit {
		return 0
	}
	return limit - used
}
