// Package xverify 提供人机验证网关。
//
// [Turnstile] 以服务端持有的密钥调用 Cloudflare Turnstile 的 siteverify 接口校验
// 客户端提交的令牌。令牌被拒绝时返回 OK=false 的 [Result]；验证服务本身的故障
// （传输错误、5xx、无法解析的响应、熔断）返回错误，由调用方按故障策略处理。
//
// 令牌只能使用一次：校验过的令牌（无论成功与否）在本地记录一段时间，
// 重复提交直接以 duplicate-token 拒绝，不再请求验证服务。
//
// 传输故障按 xretry 重试，每次请求携带相同的 idempotency_key，
// 验证服务对同一个 key 返回相同结果，因此重试不会把有效令牌消耗掉。
// 重试整体包裹在 xbreaker 熔断器内，连续失败后快速失败。
package xverify
