// Package xsampling 提供日志与事件的采样策略。
//
// # 采样器
//
//   - [Always] / [Never]：全采样与不采样
//   - [RateSampler]：按固定比率随机采样
//   - [KeyBasedSampler]：按 key 一致性采样，相同 key 总是得到相同结果
//
// 配额服务用 KeyBasedSampler 按指纹采样拦截日志：被拦截的客户端
// 往往持续重试，一致性采样让同一指纹要么每次都记录，要么都不记录。
//
//	sampler, err := xsampling.NewKeyBasedSampler(0.1, xctx.Fingerprint)
//	if sampler.ShouldSample(ctx) {
//	    logger.Info(ctx, "quota blocked")
//	}
package xsampling
