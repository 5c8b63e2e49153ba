package xnet

import (
	"fmt"
	"net/netip"
	"strings"

	"go4.org/netipx"
)

// ParseRange 从字符串解析 IP 范围。支持 3 种格式：
//   - 单 IP: "192.168.1.1"
//   - CIDR: "192.168.1.0/24"
//   - 范围: "192.168.1.1-192.168.1.100"
//
// 输入会自动去除首尾空白字符。
func ParseRange(s string) (netipx.IPRange, error) {
	s = strings.TrimSpace(s)

	// 设计决策: 拒绝 IPv6 zone ID（如 fe80::1%eth0）。IPSet 会丢弃 zone，
	// 可信代理判断将与配置不一致。
	if strings.Contains(s, "%") {
		return netipx.IPRange{}, fmt.Errorf("%w: IPv6 zone ID is not supported: %s", ErrInvalidRange, s)
	}

	if from, to, ok := strings.Cut(s, "-"); ok {
		start, err := netip.ParseAddr(strings.TrimSpace(from))
		if err != nil {
			return netipx.IPRange{}, fmt.Errorf("%w: invalid range start: %w", ErrInvalidRange, err)
		}
		end, err := netip.ParseAddr(strings.TrimSpace(to))
		if err != nil {
			return netipx.IPRange{}, fmt.Errorf("%w: invalid range end: %w", ErrInvalidRange, err)
		}
		r := netipx.IPRangeFrom(start.Unmap(), end.Unmap())
		if !r.IsValid() {
			return netipx.IPRange{}, fmt.Errorf("%w: %s", ErrInvalidRange, s)
		}
		return r, nil
	}

	if strings.Contains(s, "/") {
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			return netipx.IPRange{}, fmt.Errorf("%w: invalid CIDR: %w", ErrInvalidRange, err)
		}
		return netipx.RangeOfPrefix(prefix.Masked()), nil
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netipx.IPRange{}, fmt.Errorf("%w: %w", ErrInvalidRange, err)
	}
	addr = addr.Unmap()
	return netipx.IPRangeFrom(addr, addr), nil
}

// ParseRanges 解析多个范围并合并为 [*netipx.IPSet]。
// 空切片或 nil 返回空的 IPSet。
func ParseRanges(strs []string) (*netipx.IPSet, error) {
	var b netipx.IPSetBuilder
	for _, s := range strs {
		r, err := ParseRange(s)
		if err != nil {
			return nil, fmt.Errorf("parse range %q: %w", s, err)
		}
		b.AddRange(r)
	}
	set, err := b.IPSet()
	if err != nil {
		return nil, fmt.Errorf("build IPSet: %w", err)
	}
	return set, nil
}
