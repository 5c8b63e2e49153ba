// Package xbreaker 基于 sony/gobreaker/v2 提供熔断器。
//
// 熔断器打开时返回 [*BreakerError]，其 Retryable() 为 false，
// 因此放在 xretry 外层时不会被重试：
//
//	b := xbreaker.NewBreaker("siteverify", xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(5)))
//	err := b.Do(ctx, func() error {
//	    return retryer.Do(ctx, call)
//	})
package xbreaker
