// Package xlimit 提供按客户端地址的突发限流。
//
// 它挂在配额接口之前，拦截短时间内的密集请求：每日配额回答"今天还能用几次"，
// xlimit 回答"这一分钟是不是来得太快"。两者使用不同的键与不同的存储语义，
// 互不影响。
//
// # 后端
//
//   - Redis：基于 redis_rate 的 GCRA 算法，多副本共享同一个桶
//   - 本地：进程内令牌桶，用于没有 Redis 的单实例部署（store.driver=memory）
//
// 本地桶存放在 xlru 缓存中，空闲超过一个周期的桶会被淘汰，缓存大小有上限。
//
// # 降级
//
// Redis 出错时按 Config.Fallback 处理：
//   - FallbackClose（默认）：拒绝请求，中间件返回 500 store_unavailable
//   - FallbackOpen：放行并记录告警日志
//   - FallbackLocal：改用本地令牌桶
//
// # HTTP 中间件
//
//	limiter, _ := xlimit.New(rdb, xlimit.DefaultConfig(), xlimit.WithLogger(logger))
//	r.Use(xlimit.HTTPMiddleware(limiter))
//
// 键默认取 xctx.ClientAddress（由 xguard.RequestID 写入），缺失时退回对端地址；
// 地址为 "unknown" 的请求不做突发限流，以免所有无法识别地址的客户端共用一个桶。
package xlimit
