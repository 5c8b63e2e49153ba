// Package xsweep 巡检没有过期时间的配额键。
//
// 计数与关联写入先递增再设置过期时间。两步之间进程退出或 Redis 故障，
// 会留下永不过期的键：计数键在第二天不再被读取，只占用内存；关联集合键则会
// 让一个早已离开窗口的地址永远计入碰撞判定。
//
// Sweeper 以 SCAN 分批遍历 {prefix}usage:* 与 {prefix}assoc:*，对 TTL 为 -1 的键：
//   - 计数键：设置到其所属自然日结束的过期时间；所属日已过则直接删除
//   - 关联键：设置为当前关联窗口
//
// 集群模式下逐个主节点遍历。通常由 xcron 配合分布式锁定时调度，
// 每个触发时刻只有一个副本执行。
package xsweep
