// Package xstore 定义配额判定所依赖的最小键值存储契约。
//
// # 核心契约
//
// [Store] 只要求五个原子操作：Get、Incr、Expire、SAdd、SCard。
// 判定引擎通过类型断言发现可选能力：
//   - [Reserver]：原子的"先递增再比较"，超额时回滚，消除读后写竞态
//   - [MemberTracker]：集合写入、刷新 TTL、读取基数在一个事务内完成
//   - [WindowTracker]：按时间戳裁剪的滚动窗口集合
//
// # 实现
//
//   - [Redis]：基于 go-redis，原子操作由内嵌 Lua 脚本完成
//   - [Memory]：进程内实现，语义与 Redis 一致，用于测试与单机部署
//
// # 键布局
//
// 键由 [Keyspace] 统一生成，计数键按自然日分桶：
//
//	xquota:usage:fp:2026-10-19:<fingerprint>
//	xquota:usage:addr:2026-10-19:<address>
//	xquota:usage:pair:2026-10-19:<fingerprint>|<address>
//	xquota:assoc:fp:<fingerprint>
//	xquota:assoc:addr:<address>
//
// 过长或含特殊字符的指纹以 xxhash 摘要代替，避免键膨胀。
package xstore
