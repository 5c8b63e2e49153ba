// Package xtrace 在 HTTP 边界上提取与注入链路追踪信息。
//
// # 设计理念
//
// 底层使用 OpenTelemetry 的 W3C Trace Context 传播器，提取出的上游 span
// 作为 remote SpanContext 写入 context；xctx.TraceID / xctx.SpanID 从中读取，
// 日志 EnrichHandler 因此自动带上 trace_id 与 span_id。
//
// 解析优先级：
//  1. traceparent 头（W3C 标准）
//  2. 自定义 X-Trace-ID / X-Span-ID 头（兼容未接入 W3C 的调用方）
//  3. 都没有时按需生成新的 trace ID
//
// # 使用方式
//
//	r := chi.NewRouter()
//	r.Use(xtrace.HTTPMiddleware())
//
//	// 调用外部服务时传播
//	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
//	xtrace.InjectToRequest(ctx, req)
//
// tracestate 由传播器原样透传，本包不解释其内容。
package xtrace
