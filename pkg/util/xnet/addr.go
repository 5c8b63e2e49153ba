package xnet

import (
	"fmt"
	"net/netip"
	"strings"
)

// ParseAddr 解析来自请求头或 RemoteAddr 的地址
//
// 接受 "1.2.3.4"、"1.2.3.4:80"、"2001:db8::1"、"[2001:db8::1]:443"。
// IPv4-mapped IPv6 地址统一转换为 IPv4，zone ID 被丢弃。
func ParseAddr(s string) (netip.Addr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, ErrInvalidAddress
	}

	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Unmap().WithZone(""), nil
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap().WithZone(""), nil
	}
	// "[2001:db8::1]" 不带端口
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		if addr, err := netip.ParseAddr(s[1 : len(s)-1]); err == nil {
			return addr.Unmap().WithZone(""), nil
		}
	}
	return netip.Addr{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
}

// Canonical 返回地址的规范字符串形式
//
// 可解析的地址返回 [netip.Addr.String] 的结果；无法解析时返回去除空白后的原值，
// 由调用方决定是否接受非 IP 形式的标识。
func Canonical(s string) (string, bool) {
	addr, err := ParseAddr(s)
	if err != nil {
		return strings.TrimSpace(s), false
	}
	return addr.String(), true
}
