// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xlog: 结构化日志，基于 log/slog 扩展，lumberjack 文件轮转
//   - xtrace: HTTP 链路追踪中间件与出站传播（W3C traceparent）
//   - xmetrics: 统一可观测性接口，OpenTelemetry + Prometheus 导出
//   - xsampling: 采样策略
//
// 设计原则：
//   - 遵循 OpenTelemetry 语义规范
//   - 自动从 context 中提取追踪信息注入日志
//   - 支持动态级别控制和采样策略
package observability
