// Package quota 提供匿名调用配额与身份碰撞判定相关的子包。
//
// 子包列表：
//   - xstore: 配额存储契约，Redis 与内存实现
//   - xidentity: 客户端地址解析与指纹校验
//   - xassoc: 指纹与地址的关联集合追踪
//   - xcollision: 关联集合的碰撞阈值判定
//   - xquota: 判定引擎与计数提交
//   - xverify: 人机验证令牌校验
//   - xguard: HTTP 接入层
//   - xsweep: 计数键过期巡检
//
// 设计原则：
//   - 所有协调状态只存在于共享存储中，进程内不缓存计数
//   - 存储或验证服务故障默认拒绝请求
//   - 策略以配置表达，而非分叉的代码路径
package quota
