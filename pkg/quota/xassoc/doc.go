// Package xassoc 记录指纹与地址之间的关联，并报告关联集合的大小。
//
// 每次请求把地址加入以指纹为键的集合、把指纹加入以地址为键的集合，
// 然后读取两个集合的基数。写入总在读取之前完成，两个方向并发执行。
//
// # 窗口模式
//
//   - [ModeSliding]（默认）：每次写入刷新整个集合的 TTL，窗口是“距最近一次命中”的空闲超时。
//     持续低频出现的关联永远不会过期。
//   - [ModeRolling]：集合按成员记录最近出现时间（有序集合），早于窗口的成员被单独裁剪，
//     需要存储实现 [xstore.WindowTracker]。
//
// # 计数口径
//
// SelfInclusive 为 true（默认）时，当前请求自身的关联计入本次判定；
// 为 false 时只统计此前请求留下的关联。
//
// 地址为 [xidentity.Unknown] 时不写入地址方向的集合，该方向计数为 0。
package xassoc
