// Package distributed 提供分布式协调相关的子包。
//
// 子包列表：
//   - xcron: 分布式定时任务，Redis 锁（redsync）保证多副本下单实例执行
//
// 设计原则：
//   - 锁获取失败视为本轮跳过，不视为错误
//   - 锁 TTL 必须覆盖任务超时
package distributed
