// Package xidentity 从 HTTP 请求中解析客户端身份：网络地址与设备指纹。
//
// # 地址
//
// [Resolver] 按固定优先级读取代理头：X-Forwarded-For（逗号分隔列表的第一个值）、
// X-Real-IP，然后是各托管平台的专用头。都没有值时返回 [Unknown]。
// 配置了可信代理网段时，只有来自可信对端的请求才读取代理头。
//
// # 指纹
//
// 指纹是客户端提交的不透明字符串，只做形状校验（存在、是字符串、长度在
// [MinFingerprintLength] 与 [MaxFingerprintLength] 之间），不验证真实性。
// 校验失败是终结性的输入错误，不应重试。
//
// # 请求
//
// [Resolver.DecodeRequest] 在访问任何存储之前把请求体解析为 [Request]，
// 或返回带错误码的 [*ValidationError]。
package xidentity
