// Package xguard 把配额引擎暴露为 HTTP 接口。
//
// 路由（[Handler.Routes]）：
//
//	POST /v1/quota  判定并在放行时计数，body: {"fingerprint": "...", "verificationToken": "..."}
//	GET  /v1/quota  只读查询，指纹来自 X-Visitor-ID 头（优先）或 fingerprint 查询参数
//
// 状态码：200 放行，429 配额或冲突拦截，400 指纹无效，403 人机验证失败，
// 500 存储或验证服务故障。每个判定都带 X-RateLimit-Limit、X-RateLimit-Remaining、
// X-RateLimit-Reset 头，429 额外带 Retry-After。
//
// [Handler.Protect] 以相同流程保护任意业务接口，放行的判定可通过
// [DecisionFromContext] 取得。[RequestID] 中间件为每个请求分配 request ID
// 并把客户端地址写入 context，日志会自动携带两者。
package xguard
