// Package xnet 提供客户端地址解析与可信代理网段工具。
//
// xnet 基于 [net/netip] 和 [go4.org/netipx] 构建：
//   - parse.go: 解析单 IP / CIDR / 范围格式为 [netipx.IPRange]，批量合并为 [*netipx.IPSet]
//   - addr.go: 将请求头或 RemoteAddr 中的地址规范化为 [netip.Addr]
//   - trusted.go: [TrustedSet] 判断对端是否为可信代理
//
// # 快速示例
//
//	set, _ := xnet.NewTrustedSet([]string{"10.0.0.0/8", "192.168.1.1-192.168.1.20"})
//	peer, _ := xnet.ParseAddr("10.1.2.3:51234")
//	fmt.Println(set.Contains(peer)) // true
package xnet
