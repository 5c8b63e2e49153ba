// Package util 提供通用工具相关的子包。
//
// 子包列表：
//   - xlru: LRU 缓存，泛型支持、自动 TTL 过期
//   - xnet: IP 地址工具库，基于 net/netip + go4.org/netipx（解析、CIDR 匹配、前缀归一化）
package util
