// Package xquota 实现每日配额与身份冲突的判定引擎。
//
// 一次判定的流程：
//
//  1. 校验身份（指纹形状），失败为输入错误，不做任何存储访问；
//  2. 并发执行：写入指纹与地址的关联并读取集合大小，读取三个当日计数器；
//  3. 根据集合大小判定冲突（[xcollision]）；
//  4. 按策略纯计算判定结果；
//  5. 仍允许时，在执行计数器上原子地"先递增再比较"，超额回滚；
//  6. 占用成功后并发递增另外两个计数器，全部完成后返回。
//
// 被拦截的请求不修改任何计数器。
//
// # 策略
//
//   - [StrategyStrictBlock]：任何冲突都直接拦截；
//   - [StrategyAdaptiveCombined]（默认）：指纹冲突时改用"指纹+地址"组合计数器执行配额，
//     共享同一指纹的每个地址各自拥有完整的配额。
//
// 地址冲突在两种策略下都直接拦截。两种冲突同时成立时原因为地址冲突；
// 冲突原因优先于配额耗尽。
//
// # 故障策略
//
// 存储错误或超时默认拒绝请求（[FailClose]，返回 [KindStore] 错误）。
// 配置为 [FailOpen] 时放行并标记 Decision.Degraded，同时写一条审计日志。
//
// # 计数日
//
// 计数器按引擎时区（[WithLocation]，默认本地时区）的自然日划分，
// 过期时间为下一个本地零点。
package xquota
