package xnet

import (
	"net/netip"

	"go4.org/netipx"
)

// TrustedSet 可信代理网段集合
//
// 零值和 nil 都表示"未配置"，此时 [TrustedSet.Configured] 返回 false。
type TrustedSet struct {
	set *netipx.IPSet
}

// NewTrustedSet 从范围字符串创建可信集合
func NewTrustedSet(ranges []string) (*TrustedSet, error) {
	if len(ranges) == 0 {
		return &TrustedSet{}, nil
	}
	set, err := ParseRanges(ranges)
	if err != nil {
		return nil, err
	}
	return &TrustedSet{set: set}, nil
}

// Configured 是否配置了任何网段
func (t *TrustedSet) Configured() bool {
	return t != nil && t.set != nil && len(t.set.Ranges()) > 0
}

// Contains 判断地址是否在可信网段内
func (t *TrustedSet) Contains(addr netip.Addr) bool {
	if !t.Configured() || !addr.IsValid() {
		return false
	}
	return t.set.Contains(addr.Unmap())
}

// ContainsString 解析并判断地址，无法解析时返回 false
func (t *TrustedSet) ContainsString(s string) bool {
	addr, err := ParseAddr(s)
	if err != nil {
		return false
	}
	return t.Contains(addr)
}
