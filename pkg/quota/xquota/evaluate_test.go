package xquota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/omeyang/xquota/pkg/quota/xcollision"
)

func TestEvaluate(t *testing.T) {
	fpHit := xcollision.Result{Fingerprint: xcollision.Signal{Detected: true}}
	addrHit := xcollision.Result{Address: xcollision.Signal{Detected: true}}
	both := xcollision.Result{
		Fingerprint: xcollision.Signal{Detected: true},
		Address:     xcollision.Signal{Detected: true},
	}

	tests := []struct {
		name     string
		strategy Strategy
		coll     xcollision.Result
		usage    Usage
		want     verdict
	}{
		{
			name:     "fresh",
			strategy: StrategyStrictBlock,
			want:     verdict{allowed: true, reason: ReasonNone, enforcement: EnforcementFingerprint},
		},
		{
			name:     "below limit",
			strategy: StrategyAdaptiveCombined,
			usage:    Usage{Fingerprint: 2},
			want:     verdict{allowed: true, reason: ReasonNone, enforcement: EnforcementFingerprint, used: 2},
		},
		{
			name:     "limit reached",
			strategy: StrategyAdaptiveCombined,
			usage:    Usage{Fingerprint: 3},
			want:     verdict{reason: ReasonDailyLimit, enforcement: EnforcementFingerprint, used: 3},
		},
		{
			name:     "strict fingerprint collision ignores unused quota",
			strategy: StrategyStrictBlock,
			coll:     fpHit,
			want:     verdict{reason: ReasonFingerprintCollision, enforcement: EnforcementFingerprint},
		},
		{
			name:     "strict collision wins over limit",
			strategy: StrategyStrictBlock,
			coll:     fpHit,
			usage:    Usage{Fingerprint: 9},
			want:     verdict{reason: ReasonFingerprintCollision, enforcement: EnforcementFingerprint, used: 9},
		},
		{
			name:     "adaptive rekeys to pair counter",
			strategy: StrategyAdaptiveCombined,
			coll:     fpHit,
			usage:    Usage{Fingerprint: 3, Pair: 1},
			want:     verdict{allowed: true, reason: ReasonNone, enforcement: EnforcementCombined, used: 1},
		},
		{
			name:     "adaptive pair counter exhausted",
			strategy: StrategyAdaptiveCombined,
			coll:     fpHit,
			usage:    Usage{Fingerprint: 3, Pair: 3},
			want:     verdict{reason: ReasonDailyLimit, enforcement: EnforcementCombined, used: 3},
		},
		{
			name:     "address collision blocks under adaptive",
			strategy: StrategyAdaptiveCombined,
			coll:     addrHit,
			want:     verdict{reason: ReasonAddressCollision, enforcement: EnforcementFingerprint},
		},
		{
			name:     "address collision takes precedence",
			strategy: StrategyStrictBlock,
			coll:     both,
			usage:    Usage{Fingerprint: 5},
			want:     verdict{reason: ReasonAddressCollision, enforcement: EnforcementFingerprint, used: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			p.Strategy = tt.strategy
			assert.Equal(t, tt.want, evaluate(p, tt.coll, tt.usage))
		})
	}
}

func TestNextMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	now := time.Date(2026, 10, 19, 23, 59, 59, 0, loc)
	assert.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, loc), nextMidnight(now))

	now = time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), nextMidnight(now))
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())

	tests := []struct {
		name   string
		mutate func(*Policy)
	}{
		{"zero limit", func(p *Policy) { p.DailyLimit = 0 }},
		{"unknown strategy", func(p *Policy) { p.Strategy = "lenient" }},
		{"unknown failure policy", func(p *Policy) { p.FailurePolicy = "maybe" }},
		{"negative timeout", func(p *Policy) { p.StoreTimeout = -time.Second }},
		{"negative threshold", func(p *Policy) { p.AddressThreshold = -1 }},
		{"zero window", func(p *Policy) { p.Window = 0 }},
		{"unknown direction", func(p *Policy) { p.Direction = "sideways" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.mutate(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidPolicy)
		})
	}
}

func TestDecision_RetryAfter(t *testing.T) {
	now := time.Date(2026, 10, 19, 23, 59, 58, 500_000_000, time.UTC)
	d := &Decision{ResetAt: nextMidnight(now)}
	assert.Equal(t, 2*time.Second, d.RetryAfter(now))
	assert.Equal(t, time.Second, d.RetryAfter(d.ResetAt.Add(time.Minute)))

	d.Allowed = true
	assert.Zero(t, d.RetryAfter(now))
	assert.Zero(t, (*Decision)(nil).RetryAfter(now))
}
