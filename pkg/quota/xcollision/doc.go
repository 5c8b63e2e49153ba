// Package xcollision 根据关联集合大小判定身份冲突。
//
// 两类冲突：
//   - 指纹冲突：同一指纹在窗口内关联的不同地址数达到阈值（默认 3），
//     意味着指纹被伪造或共享；
//   - 地址冲突：同一地址在窗口内关联的不同指纹数达到阈值（默认 5），
//     意味着机器人农场或 NAT 滥用。
//
// 判定是纯函数，不做任何 I/O。阈值为 0 时关闭对应的检查。
//
// 地址为 "unknown" 时 xassoc 不维护地址方向的集合，地址计数恒为 0，
// 因此永远不会触发地址冲突。
package xcollision
