// Package xctx 管理请求上下文中的追踪与客户端身份字段。
//
// # 字段
//
//   - 追踪：request_id、trace_id、span_id。trace_id / span_id 未显式设置时，
//     回退读取 OpenTelemetry 的当前 span
//   - 客户端：client_address（解析后的地址）、fingerprint（键中使用的指纹标识）
//
// # 日志集成
//
// [AppendTraceAttrs] 与 [AppendClientAttrs] 以零分配方式追加 slog 属性，
// 供 xlog 的 EnrichHandler 在每条日志上自动注入。
package xctx
