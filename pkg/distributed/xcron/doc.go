// Package xcron 提供带分布式锁的定时任务调度。
//
// 基于 [robfig/cron/v3]。多副本部署时，同名任务在每个触发时刻只由抢到锁的
// 一个副本执行，其余副本跳过本次触发。
//
// # 锁
//
//   - [NoopLocker]：单副本，不加锁
//   - [RedisLocker]：基于 redsync 的 Redis 锁
//
// 任务执行期间锁按 TTL/3 的间隔续期；续期失败时任务 context 被取消，
// 避免锁过期后另一个副本并发执行。
//
// # 用法
//
//	s := xcron.New(xcron.WithLocker(xcron.NewRedisLocker(rdb)), xcron.WithLogger(logger))
//	_, err := s.AddFunc("@every 10m", sweeper.RunOnce, xcron.WithName("xquota-sweep"))
//	s.Start()
//	defer func() { <-s.Stop().Done() }()
//
// [robfig/cron/v3]: https://github.com/robfig/cron
package xcron
